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

type sqliteItemRepository struct {
	db       *sql.DB
	notifier *Notifier
}

const itemColumns = `id, user_id, data, deleted, modified, created`

func scanItem(row interface{ Scan(...any) error }) (*models.Item, error) {
	var i models.Item
	var data sql.NullString

	if err := row.Scan(&i.ID, &i.UserID, &data, &i.Deleted, &i.Modified, &i.Created); err != nil {
		return nil, err
	}

	var p envelope.ProtectedValue
	if ok, err := unmarshalJSONColumn(data, &p); err != nil {
		return nil, err
	} else if ok {
		i.Data = &p
	}
	return &i, nil
}

func itemArgs(i models.Item) ([]any, error) {
	data, err := marshalJSONColumn(i.Data, i.Data != nil)
	if err != nil {
		return nil, err
	}
	return []any{i.ID, i.UserID, data, i.Deleted, i.Modified, i.Created}, nil
}

func (r *sqliteItemRepository) FindAll(ctx context.Context) ([]models.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items`)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []models.Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sqliteItemRepository) FindByID(ctx context.Context, id string) (*models.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	i, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select item: %w", err)
	}
	return i, nil
}

func (r *sqliteItemRepository) InsertBatch(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, i := range items {
			args, err := itemArgs(i)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO items (`+itemColumns+`)
				VALUES (?, ?, ?, ?, ?, ?)`, args...); err != nil {
				return fmt.Errorf("failed to insert item %s: %w", i.ID, err)
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

func (r *sqliteItemRepository) UpdateBatch(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, i := range items {
			args, err := itemArgs(i)
			if err != nil {
				return err
			}
			args = append(args[1:], i.ID)
			if _, err := tx.ExecContext(ctx, `UPDATE items SET user_id = ?, data = ?,
				deleted = ?, modified = ?, created = ? WHERE id = ?`, args...); err != nil {
				return fmt.Errorf("failed to update item %s: %w", i.ID, err)
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
