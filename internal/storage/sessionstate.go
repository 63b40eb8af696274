package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/models"
)

// sqliteSessionStateRepository manages the single-row session-state table.
// The row is local-only and never synced.
type sqliteSessionStateRepository struct {
	db *sql.DB
}

func (r *sqliteSessionStateRepository) Get(ctx context.Context) (*models.SessionState, error) {
	row := r.db.QueryRowContext(ctx, `SELECT username, account_type, token, server_url,
		last_successful_sync, biometric_master_password FROM session_state WHERE id = 1`)

	var s models.SessionState
	var biometric sql.NullString
	err := row.Scan(&s.Username, &s.AccountType, &s.Token, &s.ServerURL,
		&s.LastSuccessfulSync, &biometric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select session state: %w", err)
	}

	var p envelope.ProtectedValue
	if ok, err := unmarshalJSONColumn(biometric, &p); err != nil {
		return nil, err
	} else if ok {
		s.BiometricMasterPassword = &p
	}
	return &s, nil
}

func (r *sqliteSessionStateRepository) Save(ctx context.Context, state *models.SessionState) error {
	biometric, err := marshalJSONColumn(state.BiometricMasterPassword, state.BiometricMasterPassword != nil)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO session_state
		(id, username, account_type, token, server_url, last_successful_sync, biometric_master_password)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username,
			account_type = excluded.account_type,
			token = excluded.token,
			server_url = excluded.server_url,
			last_successful_sync = excluded.last_successful_sync,
			biometric_master_password = excluded.biometric_master_password`,
		state.Username, state.AccountType, state.Token, state.ServerURL,
		state.LastSuccessfulSync, biometric)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (r *sqliteSessionStateRepository) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_state`); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}
