// Package repomanager hands out repositories bound either to the database
// connection or to a single transaction.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophshare/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophshare/internal/server/repositories/posts"
)

// Repositories is one consistent view of the store.
type Repositories struct {
	Files files.Repository
	Posts posts.Repository
}

type RepositoryManager interface {
	Files() files.Repository
	Posts() posts.Repository
	// InTx runs fn with repositories sharing one transaction. fn's error
	// rolls the transaction back.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Close() error
}
