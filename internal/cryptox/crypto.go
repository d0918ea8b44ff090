// Package cryptox seals persisted coordinator records with AES-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const KeySize = 32

var ErrSealedTooShort = errors.New("sealed payload too short")

// DeriveMasterKey stretches a passphrase into a 32-byte key with Argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// DeriveSubkey expands master into a purpose-bound key, so the registry and
// the manifest journal never share key material.
func DeriveSubkey(master []byte, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand %s: %w", purpose, err)
	}
	return key, nil
}

// Sealer encrypts and authenticates small records. The output layout is
// nonce || ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromPassphrase derives a purpose key from passphrase and salt.
func NewSealerFromPassphrase(passphrase, salt []byte, purpose string) (*Sealer, error) {
	master := DeriveMasterKey(passphrase, salt)
	defer common.WipeByteArray(master)

	key, err := DeriveSubkey(master, purpose)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	return NewSealer(key)
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := common.GenerateRandByteArray(s.aead.NonceSize())
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrSealedTooShort
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed record: %w", err)
	}
	return plaintext, nil
}

// Plain is a no-op sealer used when record sealing is disabled.
type Plain struct{}

func (Plain) Seal(b []byte) ([]byte, error) { return b, nil }
func (Plain) Open(b []byte) ([]byte, error) { return b, nil }
