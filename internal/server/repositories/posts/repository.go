// Package posts stores channel posts and their file attachments.
package posts

import (
	"context"

	"github.com/dmitrijs2005/gophshare/internal/server/models"
)

// Repository persists posts. Get returns (nil, nil) for an unknown id.
type Repository interface {
	Create(ctx context.Context, p *models.Post) error
	Get(ctx context.Context, id string) (*models.Post, error)
}
