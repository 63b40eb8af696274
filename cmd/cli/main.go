package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/dmitrijs2005/passkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/passkeeper/internal/cli"
	"github.com/dmitrijs2005/passkeeper/internal/config"
	"github.com/dmitrijs2005/passkeeper/internal/logging"
	"github.com/dmitrijs2005/passkeeper/internal/session"
	"github.com/dmitrijs2005/passkeeper/internal/storage"
	"github.com/dmitrijs2005/passkeeper/internal/webservice"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := logging.NewSlogLogger(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	store, err := storage.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	factory := func(serverURL, username, authenticationHash string, opts ...webservice.Option) (webservice.Client, error) {
		opts = append(opts, webservice.WithHTTPClient(httpClient), webservice.WithLogger(logger))
		return webservice.NewHTTPClient(serverURL, username, authenticationHash, opts...)
	}

	manager := session.NewManager(store, logger, session.WithClientFactory(factory))
	app := cli.NewApp(cfg, manager, logger)
	app.Run(ctx)
}
