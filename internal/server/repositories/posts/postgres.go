package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophshare/internal/dbx"
	"github.com/dmitrijs2005/gophshare/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX. Create issues
// several statements, so callers should hand it a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Post) error {
	query := `
		INSERT INTO posts (id, user_id, channel_id, root_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.ChannelID, p.RootID, p.Message, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	for i, fileID := range p.FileIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO post_files (post_id, file_id, position) VALUES ($1, $2, $3)`,
			p.ID, fileID, i); err != nil {
			return fmt.Errorf("failed to attach file %s: %w", fileID, err)
		}
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Post, error) {
	query := `
		SELECT id, user_id, channel_id, root_id, message, created_at
		FROM posts WHERE id = $1
	`
	p := &models.Post{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.UserID, &p.ChannelID, &p.RootID, &p.Message, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select post: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT file_id FROM post_files WHERE post_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to select post files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, err
		}
		p.FileIDs = append(p.FileIDs, fileID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p, nil
}
