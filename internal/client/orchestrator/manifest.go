package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/registry"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/codec"
	"github.com/dmitrijs2005/gophshare/internal/common"
)

// manifestStore journals request progress next to the registry entry so a
// relaunched process knows file order and ids already assigned.
type manifestStore struct {
	store  bucket.Repository
	sealer registry.Sealer
}

func manifestKey(sessionID string) string {
	return common.ManifestKeyPrefix + "." + sessionID
}

func (s *manifestStore) save(ctx context.Context, groupID string, m *models.Manifest) error {
	data, err := codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("seal manifest: %w", err)
	}
	if err := s.store.Set(ctx, groupID, manifestKey(m.SessionID), sealed); err != nil {
		return fmt.Errorf("save manifest %s: %w", m.SessionID, err)
	}
	return nil
}

// load returns nil, nil when no manifest exists.
func (s *manifestStore) load(ctx context.Context, groupID, sessionID string) (*models.Manifest, error) {
	data, err := s.store.Get(ctx, groupID, manifestKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", sessionID, err)
	}
	if data == nil {
		return nil, nil
	}

	plain, err := s.sealer.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", sessionID, err)
	}
	var m models.Manifest
	if err := codec.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", sessionID, err)
	}
	return &m, nil
}

func (s *manifestStore) delete(ctx context.Context, groupID, sessionID string) error {
	if err := s.store.Delete(ctx, groupID, manifestKey(sessionID)); err != nil {
		return fmt.Errorf("delete manifest %s: %w", sessionID, err)
	}
	return nil
}

// sessions lists the session ids that have a manifest in groupID.
func (s *manifestStore) sessions(ctx context.Context, groupID string) ([]string, error) {
	prefix := common.ManifestKeyPrefix + "."
	raw, err := s.store.List(ctx, groupID, prefix)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	ids := make([]string, 0, len(raw))
	for k := range raw {
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	return ids, nil
}
