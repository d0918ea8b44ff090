// Package credentials resolves named secrets (tokens, client certificates)
// from a secure store. Lookups are stateless; an absent secret is reported as
// (nil, nil).
package credentials

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

type Resolver interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
}

// Store is a Resolver that can also be written to, e.g. by the CLI.
type Store interface {
	Resolver
	SetSecret(ctx context.Context, name string, value []byte) error
	DeleteSecret(ctx context.Context, name string) error
	Name() string
}

var ErrInvalidName = errors.New("invalid secret name")

// StoreError wraps a backend failure with the store and secret it concerns.
type StoreError struct {
	Store  string
	Secret string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %q error for secret %q: %v", e.Store, e.Secret, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName rejects names that could escape a file-backed store.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
