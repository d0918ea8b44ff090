package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/client/storage"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const group = "group.com.example.share"

func newContext(requestID string) *models.RequestContext {
	return &models.RequestContext{
		RequestID:             requestID,
		GroupID:               group,
		ServerURL:             "https://chat.example.com",
		AuthToken:             "token-" + requestID,
		CertificateName:       "client-cert",
		IsBackgroundInitiated: true,
		CreatedAt:             time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := storage.InitDatabase(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRegisterLookup_RoundTripAllFields(t *testing.T) {
	ctx := context.Background()
	r := New(bucket.NewMemoryRepository())
	rc := newContext("r1")

	require.NoError(t, r.Register(ctx, rc.SessionID(), rc))

	got, ok, err := r.Lookup(ctx, rc.SessionID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rc, got)

	// optional certificate name absent
	plain := newContext("r2")
	plain.CertificateName = ""
	require.NoError(t, r.Register(ctx, plain.SessionID(), plain))
	got, ok, err = r.Lookup(ctx, plain.SessionID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.CertificateName)
}

func TestRegister_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/share.db"
	sealer, err := cryptox.NewSealerFromPassphrase([]byte("pw"), []byte(group), "registry")
	require.NoError(t, err)

	rc := newContext("r1")
	first := New(bucket.NewSQLiteRepository(openDB(t, path)), WithSealer(sealer))
	require.NoError(t, first.Register(ctx, rc.SessionID(), rc))

	// a fresh registry over the same file stands in for a relaunched process
	second := New(bucket.NewSQLiteRepository(openDB(t, path)), WithSealer(sealer))
	got, ok, err := second.Lookup(ctx, rc.SessionID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rc, got)
}

func TestRegister_DuplicateKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	r := New(bucket.NewMemoryRepository())
	rc := newContext("r1")
	require.NoError(t, r.Register(ctx, rc.SessionID(), rc))

	other := newContext("r1")
	other.ServerURL = "https://evil.example.com"
	err := r.Register(ctx, rc.SessionID(), other)
	require.ErrorIs(t, err, common.ErrDuplicateSession)

	got, _, err := r.Lookup(ctx, rc.SessionID())
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", got.ServerURL)
}

func TestRegister_ConcurrentSameIDOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	r := New(bucket.NewMemoryRepository())
	rc := newContext("r1")

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Register(ctx, rc.SessionID(), rc)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, common.ErrDuplicateSession)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	r := New(bucket.NewMemoryRepository())

	require.ErrorIs(t, r.Register(ctx, "no-group", newContext("x")), common.ErrInvalidRequest)
	require.ErrorIs(t, r.Register(ctx, "x@other.group", newContext("x")), common.ErrInvalidRequest)
	require.ErrorIs(t, r.Register(ctx, "x@"+group, nil), common.ErrInvalidRequest)
}

func TestLookup_UnknownIsNotAnError(t *testing.T) {
	ctx := context.Background()
	r := New(bucket.NewMemoryRepository())

	_, ok, err := r.Lookup(ctx, "never@"+group)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = r.Lookup(ctx, "garbage")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemove_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := New(bucket.NewMemoryRepository())
	rc := newContext("r1")

	require.NoError(t, r.Remove(ctx, rc.SessionID()))
	require.NoError(t, r.Register(ctx, rc.SessionID(), rc))
	require.NoError(t, r.Remove(ctx, rc.SessionID()))
	require.NoError(t, r.Remove(ctx, rc.SessionID()))

	_, ok, err := r.Lookup(ctx, rc.SessionID())
	require.NoError(t, err)
	require.False(t, ok)

	// session can be registered again once removed
	require.NoError(t, r.Register(ctx, rc.SessionID(), rc))
}

func TestList_SortedAndSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	store := bucket.NewMemoryRepository()
	r := New(store)

	late := newContext("late")
	late.CreatedAt = late.CreatedAt.Add(time.Hour)
	early := newContext("early")

	require.NoError(t, r.Register(ctx, late.SessionID(), late))
	require.NoError(t, r.Register(ctx, early.SessionID(), early))
	require.NoError(t, store.Set(ctx, group, common.SessionKeyPrefix+".bad@"+group, []byte{0xff}))
	require.NoError(t, store.Set(ctx, group, common.ManifestKeyPrefix+".x@"+group, []byte{0x01}))

	entries, err := r.List(ctx, group)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, early.SessionID(), entries[0].SessionID)
	assert.Equal(t, late.SessionID(), entries[1].SessionID)
}

func TestLookup_WrongSealerFails(t *testing.T) {
	ctx := context.Background()
	store := bucket.NewMemoryRepository()
	s1, err := cryptox.NewSealer(make([]byte, cryptox.KeySize))
	require.NoError(t, err)
	key2 := make([]byte, cryptox.KeySize)
	key2[0] = 1
	s2, err := cryptox.NewSealer(key2)
	require.NoError(t, err)

	rc := newContext("r1")
	require.NoError(t, New(store, WithSealer(s1)).Register(ctx, rc.SessionID(), rc))

	_, ok, err := New(store, WithSealer(s2)).Lookup(ctx, rc.SessionID())
	require.Error(t, err)
	require.False(t, ok)
}

type brokenStore struct{ bucket.Repository }

func (brokenStore) SetIfAbsent(context.Context, string, string, []byte) (bool, error) {
	return false, errors.New("disk full")
}

func TestRegister_StoreErrorWrapped(t *testing.T) {
	r := New(brokenStore{bucket.NewMemoryRepository()}, WithPrefix("custom"))
	rc := newContext("r1")
	err := r.Register(context.Background(), rc.SessionID(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("register %s", rc.SessionID()))
	assert.NotErrorIs(t, err, common.ErrDuplicateSession)
}
