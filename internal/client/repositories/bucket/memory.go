package bucket

import (
	"context"
	"strings"
	"sync"
)

// MemoryRepository is a process-local bucket. It does not survive restarts
// and is meant for tests and single-process runs.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string]map[string][]byte)}
}

func (r *MemoryRepository) Get(_ context.Context, groupID, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[groupID][key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (r *MemoryRepository) Set(_ context.Context, groupID, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.group(groupID)[key] = append([]byte(nil), value...)
	return nil
}

func (r *MemoryRepository) SetIfAbsent(_ context.Context, groupID, key string, value []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.group(groupID)
	if _, ok := g[key]; ok {
		return false, nil
	}
	g[key] = append([]byte(nil), value...)
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, groupID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data[groupID], key)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, groupID, prefix string) (map[string][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range r.data[groupID] {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (r *MemoryRepository) group(groupID string) map[string][]byte {
	g, ok := r.data[groupID]
	if !ok {
		g = make(map[string][]byte)
		r.data[groupID] = g
	}
	return g
}
