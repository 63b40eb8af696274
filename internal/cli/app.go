// Package cli implements the interactive passkeeper shell on top of the
// session manager.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/passkeeper/internal/config"
	"github.com/dmitrijs2005/passkeeper/internal/logging"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/session"
	"github.com/dmitrijs2005/passkeeper/internal/vault"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// sessionManager is the command surface the shell needs from the session
// layer. The real session.Manager satisfies it; tests provide a stub.
type sessionManager interface {
	State() session.State
	Username() string
	Resume(ctx context.Context) error
	RegisterRemote(ctx context.Context, serverURL, invitationCode, username, password, fullName string) error
	LoginRemote(ctx context.Context, username, password, serverURL string) error
	LoginLocal(ctx context.Context, username, password string) error
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context) error
	Logout(ctx context.Context, wipe bool) error
	ChangeMasterPassword(ctx context.Context, oldPassword, newPassword string) error
	Synchronize(ctx context.Context) error
	ItemViews(ctx context.Context) ([]*vault.ItemView, error)
	CreateItem(ctx context.Context, data models.ItemData) (models.Item, error)
	UpdateItem(ctx context.Context, view *vault.ItemView, data models.ItemData) (models.Item, error)
	DeleteItem(ctx context.Context, view *vault.ItemView) error
	ShareItem(ctx context.Context, view *vault.ItemView, granteeUsername string, isReadAllowed, isWriteAllowed bool) (models.ItemAuthorization, error)
}

// App wires the interactive shell to the session manager.
type App struct {
	config  *config.Config
	manager sessionManager
	log     logging.Logger
	reader  *bufio.Reader

	// lastViews caches the most recent listing so show/edit/delete/share can
	// address items by their printed number.
	lastViews []*vault.ItemView
}

// NewApp creates the shell over an already constructed session manager.
func NewApp(c *config.Config, manager sessionManager, log logging.Logger) *App {
	if log == nil {
		log = logging.Nop()
	}
	return &App{
		config:  c,
		manager: manager,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
	}
}

func (a *App) getStatus() string {
	s := ""
	if name := a.manager.Username(); name != "" {
		s = name + " "
	}
	s += a.manager.State().String()
	return fmt.Sprintf("(%s)", s)
}

// Run resumes any persisted session and starts the read-eval-print loop. The
// loop exits on EOF or when the user types "exit" or "quit".
func (a *App) Run(ctx context.Context) {
	if err := a.manager.Resume(ctx); err != nil {
		a.log.Warn(ctx, "resuming session failed", "error", err)
	}

	printlnFn("passkeeper CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("pk %s> ", a.getStatus())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if quit := a.dispatch(ctx, parts[0]); quit {
			return
		}
	}
}

// dispatch runs one command and reports whether the loop should exit. Command
// errors are printed, not returned, so one failed command never kills the
// shell.
func (a *App) dispatch(ctx context.Context, cmd string) bool {
	var err error

	switch cmd {
	case "help":
		a.help()
	case "register":
		err = a.Register(ctx)
	case "login":
		err = a.Login(ctx)
	case "loginlocal":
		err = a.LoginLocal(ctx)
	case "unlock":
		err = a.Unlock(ctx)
	case "lock":
		err = a.Lock(ctx)
	case "logout":
		err = a.Logout(ctx)
	case "l", "list":
		err = a.List(ctx)
	case "show":
		err = a.Show(ctx)
	case "add":
		err = a.Add(ctx)
	case "edit":
		err = a.Edit(ctx)
	case "delete":
		err = a.Delete(ctx)
	case "share":
		err = a.Share(ctx)
	case "sync":
		err = a.Sync(ctx)
	case "passwd":
		err = a.ChangePassword(ctx)
	case "exit", "quit":
		printlnFn("Bye!")
		return true
	default:
		printlnFn("Unknown command:", cmd)
	}

	if err != nil {
		printlnFn("Error:", err.Error())
	}
	return false
}

func (a *App) help() {
	switch a.manager.State() {
	case session.StateLoggedInUnlocked:
		printlnFn("Available commands: (l)ist, show, add, edit, delete, share, sync, passwd, lock, logout, exit")
	case session.StateLoggedInLocked:
		printlnFn("Available commands: unlock, logout, exit")
	default:
		printlnFn("Available commands: register, login, loginlocal, exit")
	}
}
