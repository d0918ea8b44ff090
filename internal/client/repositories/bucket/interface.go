// Package bucket is the group-scoped key/value store shared by the host
// application and the coordinator. Preferences (server URL, token) and the
// coordinator's own persisted records live here.
package bucket

import (
	"context"
)

// Repository is a namespaced key/value store. Get returns (nil, nil) for an
// absent key; Delete of an absent key is not an error.
type Repository interface {
	Get(ctx context.Context, groupID, key string) ([]byte, error)
	Set(ctx context.Context, groupID, key string, value []byte) error
	// SetIfAbsent stores value only when key is not present and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, groupID, key string, value []byte) (bool, error)
	Delete(ctx context.Context, groupID, key string) error
	// List returns all pairs in groupID whose key starts with prefix.
	List(ctx context.Context, groupID, prefix string) (map[string][]byte, error)
}

// GetString reads a string preference. ok is false when the key is absent
// or empty.
func GetString(ctx context.Context, r Repository, groupID, key string) (value string, ok bool, err error) {
	b, err := r.Get(ctx, groupID, key)
	if err != nil {
		return "", false, err
	}
	if len(b) == 0 {
		return "", false, nil
	}
	return string(b), true, nil
}
