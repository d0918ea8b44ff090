package files

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophshare/internal/server/models"
)

// MemoryRepository keeps files in process memory. Attachment state is fed
// by the posts memory repository through MarkAttached.
type MemoryRepository struct {
	mu       sync.RWMutex
	files    map[string]models.File
	attached map[string]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		files:    make(map[string]models.File),
		attached: make(map[string]bool),
	}
}

func (r *MemoryRepository) Create(_ context.Context, f *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[f.ID] = *f
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r *MemoryRepository) Attached(_ context.Context, ids []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]bool, len(ids))
	for _, id := range ids {
		if r.attached[id] {
			result[id] = true
		}
	}
	return result, nil
}

func (r *MemoryRepository) MarkAttached(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.attached[id] = true
	}
}
