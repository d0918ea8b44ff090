package posts

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/gophshare/internal/server/models"
)

// AttachmentSink is told which files a new post references.
type AttachmentSink interface {
	MarkAttached(ids []string)
}

type MemoryRepository struct {
	mu    sync.RWMutex
	posts map[string]models.Post
	sink  AttachmentSink
}

// NewMemoryRepository returns an in-memory repository. sink may be nil.
func NewMemoryRepository(sink AttachmentSink) *MemoryRepository {
	return &MemoryRepository{posts: make(map[string]models.Post), sink: sink}
}

func (r *MemoryRepository) Create(_ context.Context, p *models.Post) error {
	r.mu.Lock()
	cp := *p
	cp.FileIDs = slices.Clone(p.FileIDs)
	r.posts[p.ID] = cp
	r.mu.Unlock()

	if r.sink != nil {
		r.sink.MarkAttached(p.FileIDs)
	}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	p.FileIDs = slices.Clone(p.FileIDs)
	return &p, nil
}
