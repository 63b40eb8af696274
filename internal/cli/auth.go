package cli

import (
	"context"
	"os"
	"strings"

	"github.com/dmitrijs2005/passkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) readPasswordString(prompt string) (string, error) {
	pw, err := getPassword(prompt, os.Stdout)
	if err != nil {
		return "", err
	}
	defer common.Wipe(pw)
	return string(pw), nil
}

// Register prompts for account details and creates a remote account. The
// server URL defaults to the configured one.
func (a *App) Register(ctx context.Context) error {
	serverURL, err := a.promptServerURL()
	if err != nil {
		return err
	}
	invitationCode, err := getSimpleText(a.reader, "Enter invitation code", os.Stdout)
	if err != nil {
		return err
	}
	username, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}
	fullName, err := getSimpleText(a.reader, "Enter full name", os.Stdout)
	if err != nil {
		return err
	}
	password, err := a.readPasswordString("Enter master password")
	if err != nil {
		return err
	}
	confirmation, err := a.readPasswordString("Repeat master password")
	if err != nil {
		return err
	}
	if password != confirmation {
		printlnFn("Passwords do not match")
		return nil
	}

	if err := a.manager.RegisterRemote(ctx, serverURL, invitationCode, username, password, fullName); err != nil {
		return err
	}
	printlnFn("Registered. Use 'login' to sign in.")
	return nil
}

// Login authenticates against the server and leaves the session locked.
func (a *App) Login(ctx context.Context) error {
	serverURL, err := a.promptServerURL()
	if err != nil {
		return err
	}
	username, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := a.readPasswordString("Enter master password")
	if err != nil {
		return err
	}

	if err := a.manager.LoginRemote(ctx, username, password, serverURL); err != nil {
		return err
	}
	printlnFn("Logged in. Use 'unlock' to open the vault.")
	return nil
}

// LoginLocal creates a local-only account.
func (a *App) LoginLocal(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := a.readPasswordString("Enter master password")
	if err != nil {
		return err
	}

	if err := a.manager.LoginLocal(ctx, username, password); err != nil {
		return err
	}
	printlnFn("Local account created. Use 'unlock' to open the vault.")
	return nil
}

// Unlock opens the vault with the master password.
func (a *App) Unlock(ctx context.Context) error {
	password, err := a.readPasswordString("Enter master password")
	if err != nil {
		return err
	}
	if err := a.manager.Unlock(ctx, password); err != nil {
		return err
	}
	printlnFn("Unlocked.")
	return nil
}

// Lock wipes the in-memory keys and locks the vault.
func (a *App) Lock(ctx context.Context) error {
	a.lastViews = nil
	return a.manager.Lock(ctx)
}

// Logout destroys the session; the user chooses whether local data is wiped.
func (a *App) Logout(ctx context.Context) error {
	answer, err := getSimpleText(a.reader, "Also wipe local data? (y/N)", os.Stdout)
	if err != nil {
		return err
	}
	wipe := strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")

	a.lastViews = nil
	if err := a.manager.Logout(ctx, wipe); err != nil {
		return err
	}
	printlnFn("Logged out.")
	return nil
}

// ChangePassword rotates the master password.
func (a *App) ChangePassword(ctx context.Context) error {
	oldPassword, err := a.readPasswordString("Enter current master password")
	if err != nil {
		return err
	}
	newPassword, err := a.readPasswordString("Enter new master password")
	if err != nil {
		return err
	}
	confirmation, err := a.readPasswordString("Repeat new master password")
	if err != nil {
		return err
	}
	if newPassword != confirmation {
		printlnFn("Passwords do not match")
		return nil
	}

	if err := a.manager.ChangeMasterPassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	printlnFn("Master password changed.")
	return nil
}

func (a *App) promptServerURL() (string, error) {
	if a.config.ServerURL != "" {
		return a.config.ServerURL, nil
	}
	return getSimpleText(a.reader, "Enter server URL", os.Stdout)
}
