// Package storage implements the local persistent store: four sqlite-backed
// collections (users, items, item authorizations and the single-row session
// state) with batch operations running inside one transaction, a
// change-notification feed and an atomic reset for logout-with-wipe.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/dbx"
	"github.com/dmitrijs2005/passkeeper/internal/logging"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/storage/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// UserRepository provides CRUD over synced user records.
type UserRepository interface {
	FindAll(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	InsertBatch(ctx context.Context, users []models.User) error
	UpdateBatch(ctx context.Context, users []models.User) error
}

// ItemRepository provides CRUD over synced item records.
type ItemRepository interface {
	FindAll(ctx context.Context) ([]models.Item, error)
	FindByID(ctx context.Context, id string) (*models.Item, error)
	InsertBatch(ctx context.Context, items []models.Item) error
	UpdateBatch(ctx context.Context, items []models.Item) error
}

// ItemAuthorizationRepository provides CRUD over synced item-authorization
// records, including the per-item lookup used by the sharing model.
type ItemAuthorizationRepository interface {
	FindAll(ctx context.Context) ([]models.ItemAuthorization, error)
	FindByID(ctx context.Context, id string) (*models.ItemAuthorization, error)
	FindForItem(ctx context.Context, itemID string) ([]models.ItemAuthorization, error)
	FindForUser(ctx context.Context, userID string) ([]models.ItemAuthorization, error)
	InsertBatch(ctx context.Context, auths []models.ItemAuthorization) error
	UpdateBatch(ctx context.Context, auths []models.ItemAuthorization) error
}

// SessionStateRepository manages the single local-only session-state row.
type SessionStateRepository interface {
	Get(ctx context.Context) (*models.SessionState, error)
	Save(ctx context.Context, state *models.SessionState) error
	Delete(ctx context.Context) error
}

// Store bundles the per-entity repositories over one sqlite database and
// owns the change-notification feed.
type Store struct {
	db  *sql.DB
	log logging.Logger

	Users              UserRepository
	Items              ItemRepository
	ItemAuthorizations ItemAuthorizationRepository
	SessionState       SessionStateRepository

	notifier *Notifier
}

// Open opens (or creates) the sqlite database at dsn, applies the embedded
// migrations and wires the repositories.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	notifier := NewNotifier()
	return &Store{
		db:                 db,
		log:                log,
		Users:              &sqliteUserRepository{db: db},
		Items:              &sqliteItemRepository{db: db, notifier: notifier},
		ItemAuthorizations: &sqliteItemAuthorizationRepository{db: db, notifier: notifier},
		SessionState:       &sqliteSessionStateRepository{db: db},
		notifier:           notifier,
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe registers a listener on the change feed. The feed emits whenever
// items or item authorizations change.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	return s.notifier.Subscribe()
}

// Reset atomically clears all synced entities and the session-state row.
// Referential-integrity enforcement is relaxed for the duration of the wipe
// and restored afterwards; VACUUM reclaims the freed space. Used on
// corrupt-state recovery and logout-with-wipe.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("disabling foreign keys: %w", err)
	}

	// All four deletes commit together or not at all; a partially wiped
	// store must never look like a clean logout.
	wipeErr := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, table := range []string{"item_authorizations", "items", "users", "session_state"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})

	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil && wipeErr == nil {
		wipeErr = fmt.Errorf("re-enabling foreign keys: %w", err)
	}
	if wipeErr != nil {
		return wipeErr
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		s.log.Warn(ctx, "vacuum after reset failed", "error", err)
	}

	s.notifier.Notify()
	return nil
}

// marshalJSONColumn serializes an optional structured value (envelope,
// derivation parameters) into a nullable TEXT column.
func marshalJSONColumn(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// unmarshalJSONColumn reads a nullable TEXT column into out; a NULL column
// leaves out untouched and reports absence.
func unmarshalJSONColumn(col sql.NullString, out any) (bool, error) {
	if !col.Valid {
		return false, nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return false, fmt.Errorf("unmarshaling column: %w", err)
	}
	return true, nil
}
