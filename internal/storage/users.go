package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/dbx"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/models"
)

type sqliteUserRepository struct {
	db *sql.DB
}

const userColumns = `id, username, full_name, server_computed_authentication_hash,
	master_key_derivation_information, master_encryption_key,
	item_encryption_public_key, item_encryption_secret_key, settings,
	deleted, modified, created`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var derivation, masterKey, secretKey, settings sql.NullString

	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.ServerComputedAuthenticationHash,
		&derivation, &masterKey, &u.ItemEncryptionPublicKey, &secretKey, &settings,
		&u.Deleted, &u.Modified, &u.Created)
	if err != nil {
		return nil, err
	}

	var d models.KeyDerivationInformation
	if ok, err := unmarshalJSONColumn(derivation, &d); err != nil {
		return nil, err
	} else if ok {
		u.MasterKeyDerivationInformation = &d
	}
	for _, col := range []struct {
		src sql.NullString
		dst **envelope.ProtectedValue
	}{
		{masterKey, &u.MasterEncryptionKey},
		{secretKey, &u.ItemEncryptionSecretKey},
		{settings, &u.Settings},
	} {
		var p envelope.ProtectedValue
		if ok, err := unmarshalJSONColumn(col.src, &p); err != nil {
			return nil, err
		} else if ok {
			*col.dst = &p
		}
	}
	return &u, nil
}

func userArgs(u models.User) ([]any, error) {
	derivation, err := marshalJSONColumn(u.MasterKeyDerivationInformation, u.MasterKeyDerivationInformation != nil)
	if err != nil {
		return nil, err
	}
	masterKey, err := marshalJSONColumn(u.MasterEncryptionKey, u.MasterEncryptionKey != nil)
	if err != nil {
		return nil, err
	}
	secretKey, err := marshalJSONColumn(u.ItemEncryptionSecretKey, u.ItemEncryptionSecretKey != nil)
	if err != nil {
		return nil, err
	}
	settings, err := marshalJSONColumn(u.Settings, u.Settings != nil)
	if err != nil {
		return nil, err
	}
	return []any{u.ID, u.Username, u.FullName, u.ServerComputedAuthenticationHash,
		derivation, masterKey, u.ItemEncryptionPublicKey, secretKey, settings,
		u.Deleted, u.Modified, u.Created}, nil
}

func (r *sqliteUserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	var result []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sqliteUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select user: %w", err)
	}
	return u, nil
}

func (r *sqliteUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select user: %w", err)
	}
	return u, nil
}

func (r *sqliteUserRepository) InsertBatch(ctx context.Context, users []models.User) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, u := range users {
			args, err := userArgs(u)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
			if err != nil {
				return fmt.Errorf("failed to insert user %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

func (r *sqliteUserRepository) UpdateBatch(ctx context.Context, users []models.User) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, u := range users {
			args, err := userArgs(u)
			if err != nil {
				return err
			}
			// Shift id to the end for the WHERE clause.
			args = append(args[1:], u.ID)
			_, err = tx.ExecContext(ctx, `UPDATE users SET username = ?, full_name = ?,
				server_computed_authentication_hash = ?, master_key_derivation_information = ?,
				master_encryption_key = ?, item_encryption_public_key = ?,
				item_encryption_secret_key = ?, settings = ?, deleted = ?, modified = ?, created = ?
				WHERE id = ?`, args...)
			if err != nil {
				return fmt.Errorf("failed to update user %s: %w", u.ID, err)
			}
		}
		return nil
	})
}
