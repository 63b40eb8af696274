package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/config"
	"github.com/dmitrijs2005/passkeeper/internal/cryptox"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/session"
	"github.com/dmitrijs2005/passkeeper/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubManager provides canned responses for the command surface.
type stubManager struct {
	state    session.State
	username string
	views    []*vault.ItemView

	synchronized bool
	deletedViews []*vault.ItemView
	sharedWith   string
}

func (s *stubManager) State() session.State { return s.state }
func (s *stubManager) Username() string     { return s.username }

func (s *stubManager) Resume(context.Context) error { return nil }

func (s *stubManager) RegisterRemote(_ context.Context, _, _, _, _, _ string) error { return nil }
func (s *stubManager) LoginRemote(_ context.Context, _, _, _ string) error          { return nil }
func (s *stubManager) LoginLocal(_ context.Context, _, _ string) error              { return nil }
func (s *stubManager) Unlock(context.Context, string) error                         { return nil }
func (s *stubManager) Lock(context.Context) error                                   { return nil }
func (s *stubManager) Logout(context.Context, bool) error                           { return nil }
func (s *stubManager) ChangeMasterPassword(_ context.Context, _, _ string) error    { return nil }

func (s *stubManager) Synchronize(context.Context) error {
	s.synchronized = true
	return nil
}

func (s *stubManager) ItemViews(context.Context) ([]*vault.ItemView, error) {
	return s.views, nil
}

func (s *stubManager) CreateItem(_ context.Context, data models.ItemData) (models.Item, error) {
	return models.Item{ID: "created"}, nil
}

func (s *stubManager) UpdateItem(_ context.Context, _ *vault.ItemView, _ models.ItemData) (models.Item, error) {
	return models.Item{ID: "updated"}, nil
}

func (s *stubManager) DeleteItem(_ context.Context, view *vault.ItemView) error {
	s.deletedViews = append(s.deletedViews, view)
	return nil
}

func (s *stubManager) ShareItem(_ context.Context, _ *vault.ItemView, granteeUsername string, _, _ bool) (models.ItemAuthorization, error) {
	s.sharedWith = granteeUsername
	return models.ItemAuthorization{}, nil
}

// capturePrintln redirects shell output into a slice for assertions.
func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	orig := printlnFn
	t.Cleanup(func() { printlnFn = orig })

	var lines []string
	printlnFn = func(args ...any) (int, error) {
		lines = append(lines, fmt.Sprintln(args...))
		return 0, nil
	}
	return &lines
}

func stubInput(t *testing.T, answers ...string) {
	t.Helper()
	origText := getSimpleText
	origPassword := getPassword
	t.Cleanup(func() {
		getSimpleText = origText
		getPassword = origPassword
	})

	i := 0
	next := func() string {
		if i >= len(answers) {
			return ""
		}
		v := answers[i]
		i++
		return v
	}
	getSimpleText = func(*bufio.Reader, string, io.Writer) (string, error) {
		return next(), nil
	}
	getPassword = func(string, io.Writer) ([]byte, error) {
		return []byte(next()), nil
	}
}

func decryptedView(t *testing.T, title string) *vault.ItemView {
	t.Helper()
	priv, err := cryptox.GenerateAsymmetricKeyPair()
	require.NoError(t, err)
	pubDER, err := cryptox.MarshalPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	privDER, err := cryptox.MarshalPrivateKey(priv)
	require.NoError(t, err)

	draft := vault.NewItemDraft("u1", pubDER)
	draft.Data = models.ItemData{Title: title, Username: "user", Password: "pw"}
	result, err := draft.Save()
	require.NoError(t, err)

	view := vault.NewItemView(result.Item, *result.Authorization)
	_, err = view.Decrypt(privDER)
	require.NoError(t, err)
	return view
}

func newTestApp(m sessionManager) *App {
	return NewApp(&config.Config{}, m, nil)
}

func TestList_EmptyAndPopulated(t *testing.T) {
	lines := capturePrintln(t)
	m := &stubManager{state: session.StateLoggedInUnlocked}
	app := newTestApp(m)

	require.NoError(t, app.List(context.Background()))
	assert.Contains(t, (*lines)[0], "No items.")

	m.views = []*vault.ItemView{decryptedView(t, "mail")}
	require.NoError(t, app.List(context.Background()))
	assert.Contains(t, (*lines)[1], "mail")
	assert.Contains(t, (*lines)[1], "[rw]")
	assert.Len(t, app.lastViews, 1)
}

func TestShow_RequiresListingFirst(t *testing.T) {
	capturePrintln(t)
	app := newTestApp(&stubManager{})

	err := app.Show(context.Background())
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestShow_PrintsDecryptedFields(t *testing.T) {
	lines := capturePrintln(t)
	stubInput(t, "1")
	m := &stubManager{views: []*vault.ItemView{decryptedView(t, "mail")}}
	app := newTestApp(m)

	require.NoError(t, app.List(context.Background()))
	require.NoError(t, app.Show(context.Background()))

	joined := strings.Join(*lines, "")
	assert.Contains(t, joined, "Title:    mail")
	assert.Contains(t, joined, "Password: pw")
}

func TestPickView_RejectsBadNumbers(t *testing.T) {
	capturePrintln(t)
	m := &stubManager{views: []*vault.ItemView{decryptedView(t, "mail")}}
	app := newTestApp(m)
	require.NoError(t, app.List(context.Background()))

	stubInput(t, "7")
	_, err := app.pickView("Item number")
	assert.ErrorIs(t, err, common.ErrValidation)

	stubInput(t, "not a number")
	_, err = app.pickView("Item number")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestShare_ParsesAccessLevels(t *testing.T) {
	capturePrintln(t)
	m := &stubManager{views: []*vault.ItemView{decryptedView(t, "mail")}}
	app := newTestApp(m)
	require.NoError(t, app.List(context.Background()))

	stubInput(t, "1", "bob", "rw")
	require.NoError(t, app.Share(context.Background()))
	assert.Equal(t, "bob", m.sharedWith)

	stubInput(t, "1", "bob", "sometimes")
	err := app.Share(context.Background())
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDispatch(t *testing.T) {
	lines := capturePrintln(t)
	m := &stubManager{state: session.StateLoggedInUnlocked}
	app := newTestApp(m)
	ctx := context.Background()

	assert.False(t, app.dispatch(ctx, "sync"))
	assert.True(t, m.synchronized)

	assert.False(t, app.dispatch(ctx, "frobnicate"))
	assert.Contains(t, strings.Join(*lines, ""), "Unknown command: frobnicate")

	assert.True(t, app.dispatch(ctx, "exit"))
}

func TestHelp_VariesByState(t *testing.T) {
	lines := capturePrintln(t)
	m := &stubManager{state: session.StateLoggedOut}
	app := newTestApp(m)

	app.help()
	m.state = session.StateLoggedInLocked
	app.help()
	m.state = session.StateLoggedInUnlocked
	app.help()

	assert.Contains(t, (*lines)[0], "register")
	assert.Contains(t, (*lines)[1], "unlock")
	assert.Contains(t, (*lines)[2], "share")
}
