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

type sqliteItemAuthorizationRepository struct {
	db       *sql.DB
	notifier *Notifier
}

const itemAuthorizationColumns = `id, user_id, item_id, item_key, read_only, deleted, modified, created`

func scanItemAuthorization(row interface{ Scan(...any) error }) (*models.ItemAuthorization, error) {
	var a models.ItemAuthorization
	var itemKey sql.NullString

	err := row.Scan(&a.ID, &a.UserID, &a.ItemID, &itemKey, &a.ReadOnly,
		&a.Deleted, &a.Modified, &a.Created)
	if err != nil {
		return nil, err
	}

	var p envelope.ProtectedValue
	if ok, err := unmarshalJSONColumn(itemKey, &p); err != nil {
		return nil, err
	} else if ok {
		a.ItemKey = &p
	}
	return &a, nil
}

func itemAuthorizationArgs(a models.ItemAuthorization) ([]any, error) {
	itemKey, err := marshalJSONColumn(a.ItemKey, a.ItemKey != nil)
	if err != nil {
		return nil, err
	}
	return []any{a.ID, a.UserID, a.ItemID, itemKey, a.ReadOnly, a.Deleted, a.Modified, a.Created}, nil
}

func (r *sqliteItemAuthorizationRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.ItemAuthorization, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select item authorizations: %w", err)
	}
	defer rows.Close()

	var result []models.ItemAuthorization
	for rows.Next() {
		a, err := scanItemAuthorization(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sqliteItemAuthorizationRepository) FindAll(ctx context.Context) ([]models.ItemAuthorization, error) {
	return r.queryMany(ctx, `SELECT `+itemAuthorizationColumns+` FROM item_authorizations`)
}

func (r *sqliteItemAuthorizationRepository) FindByID(ctx context.Context, id string) (*models.ItemAuthorization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemAuthorizationColumns+` FROM item_authorizations WHERE id = ?`, id)
	a, err := scanItemAuthorization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select item authorization: %w", err)
	}
	return a, nil
}

func (r *sqliteItemAuthorizationRepository) FindForItem(ctx context.Context, itemID string) ([]models.ItemAuthorization, error) {
	return r.queryMany(ctx, `SELECT `+itemAuthorizationColumns+` FROM item_authorizations WHERE item_id = ?`, itemID)
}

func (r *sqliteItemAuthorizationRepository) FindForUser(ctx context.Context, userID string) ([]models.ItemAuthorization, error) {
	return r.queryMany(ctx, `SELECT `+itemAuthorizationColumns+` FROM item_authorizations WHERE user_id = ?`, userID)
}

func (r *sqliteItemAuthorizationRepository) InsertBatch(ctx context.Context, auths []models.ItemAuthorization) error {
	if len(auths) == 0 {
		return nil
	}
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, a := range auths {
			args, err := itemAuthorizationArgs(a)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO item_authorizations (`+itemAuthorizationColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
				return fmt.Errorf("failed to insert item authorization %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.notifier.Notify()
	return nil
}

func (r *sqliteItemAuthorizationRepository) UpdateBatch(ctx context.Context, auths []models.ItemAuthorization) error {
	if len(auths) == 0 {
		return nil
	}
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, a := range auths {
			args, err := itemAuthorizationArgs(a)
			if err != nil {
				return err
			}
			args = append(args[1:], a.ID)
			if _, err := tx.ExecContext(ctx, `UPDATE item_authorizations SET user_id = ?, item_id = ?,
				item_key = ?, read_only = ?, deleted = ?, modified = ?, created = ?
				WHERE id = ?`, args...); err != nil {
				return fmt.Errorf("failed to update item authorization %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.notifier.Notify()
	return nil
}
