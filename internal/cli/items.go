package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/vault"
)

// List prints the visible items and caches them so other commands can address
// items by number.
func (a *App) List(ctx context.Context) error {
	views, err := a.manager.ItemViews(ctx)
	if err != nil {
		return err
	}
	a.lastViews = views

	if len(views) == 0 {
		printlnFn("No items.")
		return nil
	}
	for i, v := range views {
		access := "rw"
		if v.Authorization.ReadOnly {
			access = "ro"
		}
		printlnFn(fmt.Sprintf("%3d. %-30s [%s]", i+1, v.Data().Title, access))
	}
	return nil
}

// pickView resolves a user-entered number against the last listing.
func (a *App) pickView(prompt string) (*vault.ItemView, error) {
	if len(a.lastViews) == 0 {
		return nil, fmt.Errorf("%w: run 'list' first", common.ErrInvalidState)
	}
	answer, err := getSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n < 1 || n > len(a.lastViews) {
		return nil, fmt.Errorf("%w: no such item %q", common.ErrValidation, answer)
	}
	return a.lastViews[n-1], nil
}

// Show prints one decrypted item.
func (a *App) Show(ctx context.Context) error {
	view, err := a.pickView("Item number")
	if err != nil {
		return err
	}
	data := view.Data()
	printlnFn("Title:    " + data.Title)
	printlnFn("Username: " + data.Username)
	printlnFn("Password: " + data.Password)
	printlnFn("URL:      " + data.URL)
	if data.Notes != "" {
		printlnFn("Notes:\n" + data.Notes)
	}
	return nil
}

func (a *App) promptItemData(initial models.ItemData) (models.ItemData, error) {
	data := initial

	title, err := getSimpleText(a.reader, "Title", os.Stdout)
	if err != nil {
		return data, err
	}
	if title != "" {
		data.Title = title
	}
	username, err := getSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return data, err
	}
	if username != "" {
		data.Username = username
	}
	password, err := a.readPasswordString("Password")
	if err != nil {
		return data, err
	}
	if password != "" {
		data.Password = password
	}
	url, err := getSimpleText(a.reader, "URL", os.Stdout)
	if err != nil {
		return data, err
	}
	if url != "" {
		data.URL = url
	}
	notes, err := GetMultiline(a.reader, "Notes", os.Stdout)
	if err != nil {
		return data, err
	}
	if notes != "" {
		data.Notes = notes
	}
	return data, nil
}

// Add creates a new item.
func (a *App) Add(ctx context.Context) error {
	data, err := a.promptItemData(models.ItemData{})
	if err != nil {
		return err
	}
	if _, err := a.manager.CreateItem(ctx, data); err != nil {
		return err
	}
	printlnFn("Saved.")
	return nil
}

// Edit re-prompts the fields of an existing item; empty input keeps the
// current value.
func (a *App) Edit(ctx context.Context) error {
	view, err := a.pickView("Item number")
	if err != nil {
		return err
	}
	data, err := a.promptItemData(*view.Data())
	if err != nil {
		return err
	}
	if _, err := a.manager.UpdateItem(ctx, view, data); err != nil {
		return err
	}
	printlnFn("Saved.")
	return nil
}

// Delete soft-deletes an item.
func (a *App) Delete(ctx context.Context) error {
	view, err := a.pickView("Item number")
	if err != nil {
		return err
	}
	if err := a.manager.DeleteItem(ctx, view); err != nil {
		return err
	}
	a.lastViews = nil
	printlnFn("Deleted.")
	return nil
}

// Share grants, adjusts or revokes another user's access to an item.
func (a *App) Share(ctx context.Context) error {
	view, err := a.pickView("Item number")
	if err != nil {
		return err
	}
	username, err := getSimpleText(a.reader, "Share with (username)", os.Stdout)
	if err != nil {
		return err
	}
	access, err := getSimpleText(a.reader, "Access: (r)ead, read(w)rite or (n)one to revoke", os.Stdout)
	if err != nil {
		return err
	}

	var isReadAllowed, isWriteAllowed bool
	switch strings.ToLower(access) {
	case "r", "read":
		isReadAllowed = true
	case "w", "rw", "readwrite":
		isReadAllowed, isWriteAllowed = true, true
	case "n", "none":
	default:
		return fmt.Errorf("%w: unknown access level %q", common.ErrValidation, access)
	}

	if _, err := a.manager.ShareItem(ctx, view, username, isReadAllowed, isWriteAllowed); err != nil {
		return err
	}
	printlnFn("Done.")
	return nil
}

// Sync runs a full synchronization.
func (a *App) Sync(ctx context.Context) error {
	if err := a.manager.Synchronize(ctx); err != nil {
		return err
	}
	printlnFn("Synchronized.")
	return nil
}
