package bucket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophshare/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, groupID, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM bucket WHERE group_id = ? AND key = ?`, groupID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket[%s/%s]: %w", groupID, key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, groupID, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bucket (group_id, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(group_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, groupID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set bucket[%s/%s]: %w", groupID, key, err)
	}
	return nil
}

func (r *SQLiteRepository) SetIfAbsent(ctx context.Context, groupID, key string, value []byte) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO bucket (group_id, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(group_id, key) DO NOTHING
	`, groupID, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to insert bucket[%s/%s]: %w", groupID, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, groupID, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bucket WHERE group_id = ? AND key = ?`, groupID, key)
	if err != nil {
		return fmt.Errorf("failed to delete bucket[%s/%s]: %w", groupID, key, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, groupID, prefix string) (map[string][]byte, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if prefix == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT key, value FROM bucket WHERE group_id = ?`, groupID)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT key, value FROM bucket WHERE group_id = ? AND instr(key, ?) = 1`, groupID, prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket[%s]: %w", groupID, err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan bucket row: %w", err)
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bucket rows: %w", err)
	}

	return result, nil
}
