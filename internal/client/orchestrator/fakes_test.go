package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/dispatcher"
	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/registry"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/stretchr/testify/require"
)

const group = "group.test"

// fakeTransfers records what the orchestrator asks for. Results are fed
// back by the test through Orchestrator.HandleTaskResult.
type fakeTransfers struct {
	reg *registry.Registry

	mu        sync.Mutex
	started   []string
	files     map[string]models.FileDescriptor
	posts     []*models.CreatePostBody
	live      map[string]bool
	cancelled []string
	finished  []string
	failStart map[string]error
	openErr   error

	// whether the registry still mapped the session when Finish ran
	mappedAtFinish map[string]bool
}

func newFakeTransfers(reg *registry.Registry) *fakeTransfers {
	return &fakeTransfers{
		reg:       reg,
		files:     make(map[string]models.FileDescriptor),
		live:      make(map[string]bool),
		failStart: make(map[string]error),

		mappedAtFinish: make(map[string]bool),
	}
}

func (f *fakeTransfers) OpenSession(ctx context.Context, rc *models.RequestContext) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	if err := f.reg.Register(ctx, rc.SessionID(), rc); err != nil {
		return "", err
	}
	return rc.SessionID(), nil
}

func (f *fakeTransfers) start(ctx context.Context, sessionID, taskID string) error {
	if _, ok, _ := f.reg.Lookup(ctx, sessionID); !ok {
		return common.ErrSessionNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failStart[taskID]; err != nil {
		return err
	}
	f.started = append(f.started, taskID)
	f.live[taskID] = true
	return nil
}

func (f *fakeTransfers) StartFileTransfer(ctx context.Context, sessionID string, index int, fd *models.FileDescriptor, _ string) (string, error) {
	taskID := models.FileTaskID(sessionID, index)
	if err := f.start(ctx, sessionID, taskID); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.files[taskID] = *fd
	f.mu.Unlock()
	return taskID, nil
}

func (f *fakeTransfers) StartPostTransfer(ctx context.Context, sessionID string, post *models.CreatePostBody) (string, error) {
	taskID := models.PostTaskID(sessionID)
	if err := f.start(ctx, sessionID, taskID); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.posts = append(f.posts, post)
	f.mu.Unlock()
	return taskID, nil
}

func (f *fakeTransfers) LiveTasks(sessionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.live {
		if ref, err := models.ParseTaskID(id); err == nil && ref.SessionID == sessionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeTransfers) Cancel(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, sessionID)
}

func (f *fakeTransfers) Finish(sessionID string) {
	_, mapped, _ := f.reg.Lookup(context.Background(), sessionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, sessionID)
	f.mappedAtFinish[sessionID] = mapped
}

func (f *fakeTransfers) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakeTransfers) Posts() []*models.CreatePostBody {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.CreatePostBody(nil), f.posts...)
}

// settle marks a task finished, as the engine does before its callback.
func (f *fakeTransfers) settle(taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, taskID)
}

type env struct {
	store bucket.Repository
	reg   *registry.Registry
	tr    *fakeTransfers
	disp  *dispatcher.Dispatcher
	orch  *Orchestrator
	out   <-chan models.Outcome
}

func setPrefs(t *testing.T, store bucket.Repository) {
	t.Helper()
	ctx := context.Background()
	for k, v := range map[string]string{
		common.PrefServerURL:     "https://chat.example.com",
		common.PrefToken:         "tok",
		common.PrefCurrentUserID: "user-1",
	} {
		require.NoError(t, store.Set(ctx, group, k, []byte(v)))
	}
}

// newEnv builds an orchestrator over store. Passing the store of a previous
// env simulates a process restart.
func newEnv(t *testing.T, store bucket.Repository, opts ...Option) *env {
	t.Helper()
	if store == nil {
		store = bucket.NewMemoryRepository()
		setPrefs(t, store)
	}
	reg := registry.New(store)
	tr := newFakeTransfers(reg)
	disp := dispatcher.New(nil)
	o := New(tr, reg, store, disp, opts...)
	out, unsubscribe := o.Subscribe()
	t.Cleanup(unsubscribe)
	return &env{store: store, reg: reg, tr: tr, disp: disp, orch: o, out: out}
}

func (e *env) complete(sessionID, taskID string, result models.TransferResult) {
	e.tr.settle(taskID)
	e.orch.HandleTaskResult(context.Background(), sessionID, taskID, result)
}

func (e *env) succeed(sessionID, taskID, serverID string) {
	e.complete(sessionID, taskID, models.Succeeded{ServerID: serverID})
}

func (e *env) fail(sessionID, taskID string, err error) {
	e.complete(sessionID, taskID, models.Failed{Err: &models.TransferError{TaskID: taskID, StatusCode: 500, Err: err}})
}

func (e *env) outcome(t *testing.T) models.Outcome {
	t.Helper()
	select {
	case out := <-e.out:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return models.Outcome{}
	}
}

func (e *env) noOutcome(t *testing.T) {
	t.Helper()
	select {
	case out := <-e.out:
		t.Fatalf("unexpected outcome %+v", out)
	case <-time.After(20 * time.Millisecond):
	}
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(paths[i], []byte("content of "+n), 0o600))
	}
	return paths
}

var errBoom = errors.New("boom")
