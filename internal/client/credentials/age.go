package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/dmitrijs2005/gophshare/internal/filex"
)

const ageSuffix = ".age"

// AgeFileStore keeps one age-encrypted file per secret in dir. Files are
// encrypted to the store identity's recipient, so only the holder of the
// identity can read them back.
type AgeFileStore struct {
	dir       string
	identity  *age.X25519Identity
	recipient age.Recipient
}

func NewAgeFileStore(dir string, identity *age.X25519Identity) (*AgeFileStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &AgeFileStore{dir: abs, identity: identity, recipient: identity.Recipient()}, nil
}

func (s *AgeFileStore) Name() string { return "age" }

func (s *AgeFileStore) path(name string) string {
	return filepath.Join(s.dir, name+ageSuffix)
}

func (s *AgeFileStore) GetSecret(_ context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	ciphertext, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Store: s.Name(), Secret: name, Err: err}
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, &StoreError{Store: s.Name(), Secret: name, Err: fmt.Errorf("decrypting: %w", err)}
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, &StoreError{Store: s.Name(), Secret: name, Err: fmt.Errorf("reading plaintext: %w", err)}
	}
	return plaintext, nil
}

func (s *AgeFileStore) SetSecret(_ context.Context, name string, value []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return &StoreError{Store: s.Name(), Secret: name, Err: fmt.Errorf("creating encryptor: %w", err)}
	}
	if _, err := w.Write(value); err != nil {
		return &StoreError{Store: s.Name(), Secret: name, Err: err}
	}
	if err := w.Close(); err != nil {
		return &StoreError{Store: s.Name(), Secret: name, Err: fmt.Errorf("finalizing: %w", err)}
	}

	// write-then-rename so a reader never sees a partial file
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return &StoreError{Store: s.Name(), Secret: name, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return &StoreError{Store: s.Name(), Secret: name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Store: s.Name(), Secret: name, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return &StoreError{Store: s.Name(), Secret: name, Err: err}
	}
	return nil
}

func (s *AgeFileStore) DeleteSecret(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StoreError{Store: s.Name(), Secret: name, Err: err}
	}
	return nil
}

// LoadOrCreateIdentity reads an age X25519 identity from path, generating
// and saving a new one (mode 0600) if the file does not exist.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parseIdentityFile(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading identity: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().UTC().Format(time.RFC3339), identity.Recipient(), identity)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	return identity, nil
}

func parseIdentityFile(data []byte) (*age.X25519Identity, error) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
		return identity, nil
	}
	return nil, errors.New("identity file contains no key")
}
