package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophshare/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophshare/internal/server/repositories/posts"
)

// InMemoryRepositoryManager keeps everything in process memory. InTx
// serializes callers instead of providing rollback.
type InMemoryRepositoryManager struct {
	mu    sync.Mutex
	files *files.MemoryRepository
	posts *posts.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	f := files.NewMemoryRepository()
	return &InMemoryRepositoryManager{files: f, posts: posts.NewMemoryRepository(f)}
}

func (m *InMemoryRepositoryManager) Files() files.Repository { return m.files }

func (m *InMemoryRepositoryManager) Posts() posts.Repository { return m.posts }

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, Repositories{Files: m.files, Posts: m.posts})
}

func (m *InMemoryRepositoryManager) Close() error { return nil }
