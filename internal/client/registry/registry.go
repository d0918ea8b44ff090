// Package registry is the persistent mapping from transfer session id to the
// RequestContext that started it. Entries live in the shared bucket store so
// a relaunched process can pick up callbacks for sessions it never created
// in memory.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/codec"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/cryptox"
	"github.com/dmitrijs2005/gophshare/internal/logging"
)

// Sealer protects records at rest. cryptox.Sealer and cryptox.Plain satisfy it.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Entry is one persisted mapping.
type Entry struct {
	SessionID string
	Context   *models.RequestContext
}

type Registry struct {
	// mu serializes every read-modify-write against the store.
	mu     sync.Mutex
	store  bucket.Repository
	sealer Sealer
	prefix string
	logger logging.Logger
}

type Option func(*Registry)

func WithSealer(s Sealer) Option {
	return func(r *Registry) { r.sealer = s }
}

// WithPrefix overrides the key prefix (default "share.session").
func WithPrefix(prefix string) Option {
	return func(r *Registry) { r.prefix = prefix }
}

func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func New(store bucket.Repository, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		sealer: cryptox.Plain{},
		prefix: common.SessionKeyPrefix,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("module", "registry")
	return r
}

func (r *Registry) key(sessionID string) string {
	return r.prefix + "." + sessionID
}

// Register inserts a new mapping. It never overwrites: an existing entry
// yields common.ErrDuplicateSession and is left untouched.
func (r *Registry) Register(ctx context.Context, sessionID string, rc *models.RequestContext) error {
	_, groupID, ok := models.ParseSessionID(sessionID)
	if !ok {
		return fmt.Errorf("%w: malformed session id %q", common.ErrInvalidRequest, sessionID)
	}
	if rc == nil || rc.GroupID != groupID {
		return fmt.Errorf("%w: context group does not match session %q", common.ErrInvalidRequest, sessionID)
	}

	data, err := r.encode(rc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inserted, err := r.store.SetIfAbsent(ctx, groupID, r.key(sessionID), data)
	if err != nil {
		return fmt.Errorf("register %s: %w", sessionID, err)
	}
	if !inserted {
		return fmt.Errorf("%w: %s", common.ErrDuplicateSession, sessionID)
	}

	r.logger.Debug(ctx, "session registered", "session", sessionID)
	return nil
}

// Lookup returns the context for sessionID. A session this process does not
// know about is reported with ok=false and no error.
func (r *Registry) Lookup(ctx context.Context, sessionID string) (*models.RequestContext, bool, error) {
	_, groupID, ok := models.ParseSessionID(sessionID)
	if !ok {
		return nil, false, nil
	}

	r.mu.Lock()
	data, err := r.store.Get(ctx, groupID, r.key(sessionID))
	r.mu.Unlock()

	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", sessionID, err)
	}
	if data == nil {
		return nil, false, nil
	}

	rc, err := r.decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", sessionID, err)
	}
	return rc, true, nil
}

// Remove deletes the mapping. Removing an absent id is a no-op.
func (r *Registry) Remove(ctx context.Context, sessionID string) error {
	_, groupID, ok := models.ParseSessionID(sessionID)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, groupID, r.key(sessionID)); err != nil {
		return fmt.Errorf("remove %s: %w", sessionID, err)
	}
	return nil
}

// List returns every readable entry of groupID ordered by creation time.
// Records that cannot be decoded are skipped and logged.
func (r *Registry) List(ctx context.Context, groupID string) ([]Entry, error) {
	r.mu.Lock()
	raw, err := r.store.List(ctx, groupID, r.prefix+".")
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for k, data := range raw {
		sessionID := strings.TrimPrefix(k, r.prefix+".")
		rc, err := r.decode(data)
		if err != nil {
			r.logger.Warn(ctx, "skipping unreadable session record", "session", sessionID, "error", err)
			continue
		}
		entries = append(entries, Entry{SessionID: sessionID, Context: rc})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Context.CreatedAt.Equal(entries[j].Context.CreatedAt) {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].Context.CreatedAt.Before(entries[j].Context.CreatedAt)
	})
	return entries, nil
}

func (r *Registry) encode(rc *models.RequestContext) ([]byte, error) {
	data, err := codec.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("encode request context: %w", err)
	}
	sealed, err := r.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("seal request context: %w", err)
	}
	return sealed, nil
}

func (r *Registry) decode(data []byte) (*models.RequestContext, error) {
	plain, err := r.sealer.Open(data)
	if err != nil {
		return nil, err
	}
	var rc models.RequestContext
	if err := codec.Unmarshal(plain, &rc); err != nil {
		return nil, fmt.Errorf("decode request context: %w", err)
	}
	return &rc, nil
}
