// Package files stores metadata of uploaded files.
package files

import (
	"context"

	"github.com/dmitrijs2005/gophshare/internal/server/models"
)

// Repository persists file metadata. Get returns (nil, nil) for an unknown id.
type Repository interface {
	Create(ctx context.Context, f *models.File) error
	Get(ctx context.Context, id string) (*models.File, error)
	// Attached reports which of ids are already referenced by a post.
	Attached(ctx context.Context, ids []string) (map[string]bool, error)
}
