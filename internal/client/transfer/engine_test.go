package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/credentials"
	"github.com/dmitrijs2005/gophshare/internal/client/metrics"
	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/registry"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/client/transfer/transfertest"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/netx"
	"github.com/dmitrijs2005/gophshare/internal/tlsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const group = "group.test"

type taskEvent struct {
	sessionID string
	taskID    string
	result    models.TransferResult
}

type recorder struct {
	results chan taskEvent
	invalid chan string

	mu   sync.Mutex
	errs map[string]error
}

func newRecorder() *recorder {
	return &recorder{
		results: make(chan taskEvent, 16),
		invalid: make(chan string, 16),
		errs:    make(map[string]error),
	}
}

func (r *recorder) HandleTaskResult(_ context.Context, sessionID, taskID string, result models.TransferResult) {
	r.results <- taskEvent{sessionID: sessionID, taskID: taskID, result: result}
}

func (r *recorder) HandleSessionInvalid(_ context.Context, sessionID string, err error) {
	r.mu.Lock()
	r.errs[sessionID] = err
	r.mu.Unlock()
	r.invalid <- sessionID
}

func (r *recorder) next(t *testing.T) taskEvent {
	t.Helper()
	select {
	case ev := <-r.results:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
		return taskEvent{}
	}
}

type fixture struct {
	engine *Engine
	reg    *registry.Registry
	creds  *credentials.MemoryStore
	rec    *recorder
	m      *metrics.Metrics
}

func newFixture(t *testing.T, backend Backend) *fixture {
	t.Helper()
	reg := registry.New(bucket.NewMemoryRepository())
	creds := credentials.NewMemoryStore()
	m := metrics.New()
	e := New(backend, reg, creds, WithMetrics(m))
	rec := newRecorder()
	e.SetHandler(rec)
	return &fixture{engine: e, reg: reg, creds: creds, rec: rec, m: m}
}

func requestContext(serverURL, requestID string) *models.RequestContext {
	return &models.RequestContext{
		RequestID: requestID,
		GroupID:   group,
		ServerURL: serverURL,
		AuthToken: "secret-token",
		CreatedAt: time.Now().UTC(),
	}
}

func writeFile(t *testing.T, name, content string) *models.FileDescriptor {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return &models.FileDescriptor{
		LocalPath:    p,
		Filename:     name,
		MimeType:     "text/plain",
		DeclaredSize: int64(len(content)),
	}
}

func TestStartFileTransfer_Success(t *testing.T) {
	srv := transfertest.New(t)
	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second})
	ctx := context.Background()

	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL, "r1"))
	require.NoError(t, err)

	fd := writeFile(t, "a.txt", "hello")
	taskID, err := f.engine.StartFileTransfer(ctx, sessionID, 0, fd, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, models.FileTaskID(sessionID, 0), taskID)

	ev := f.rec.next(t)
	assert.Equal(t, taskID, ev.taskID)
	ok, isOK := ev.result.(models.Succeeded)
	require.True(t, isOK, "expected success, got %#v", ev.result)

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, uploads[0].ID, ok.ServerID)
	assert.Equal(t, "chan-1", uploads[0].ChannelID)
	assert.Equal(t, "secret-token", uploads[0].Token)
	assert.Equal(t, "hello", string(uploads[0].Content))
	assert.Empty(t, f.engine.LiveTasks(sessionID))
}

func TestStartPostTransfer_Success(t *testing.T) {
	srv := transfertest.New(t)
	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second})
	ctx := context.Background()

	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL+"/", "r1"))
	require.NoError(t, err)

	_, err = f.engine.StartPostTransfer(ctx, sessionID, &models.CreatePostBody{
		UserID: "u1", ChannelID: "c1", Message: "hi", FileIDs: []string{"f2", "f1"},
	})
	require.NoError(t, err)

	ev := f.rec.next(t)
	res, isOK := ev.result.(models.Succeeded)
	require.True(t, isOK, "expected success, got %#v", ev.result)

	posts := srv.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, posts[0].ID, res.ServerID)
	assert.Equal(t, []string{"f2", "f1"}, posts[0].FileIDs)
	assert.Equal(t, "u1", posts[0].UserID)
}

func TestClassify_Failures(t *testing.T) {
	srv := transfertest.New(t)
	srv.FailFile("bad.txt", http.StatusRequestEntityTooLarge)
	srv.RawFileResponse("weird.txt", `{"file_infos":[]}`)
	srv.RawFileResponse("junk.txt", `<html>`)

	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second})
	ctx := context.Background()
	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL, "r1"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		file      string
		status    int
		malformed bool
	}{
		{name: "non 2xx", file: "bad.txt", status: http.StatusRequestEntityTooLarge},
		{name: "missing id", file: "weird.txt", malformed: true},
		{name: "not json", file: "junk.txt", malformed: true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.StartFileTransfer(ctx, sessionID, i, writeFile(t, tt.file, "x"), "c")
			require.NoError(t, err)

			ev := f.rec.next(t)
			failed, ok := ev.result.(models.Failed)
			require.True(t, ok, "expected failure, got %#v", ev.result)
			assert.ErrorIs(t, failed.Err, common.ErrTransferFailed)

			var te *models.TransferError
			require.ErrorAs(t, failed.Err, &te)
			assert.Equal(t, ev.taskID, te.TaskID)

			if tt.malformed {
				assert.ErrorIs(t, failed.Err, common.ErrMalformedResponse)
			} else {
				assert.Equal(t, tt.status, te.StatusCode)
				var se *netx.StatusError
				assert.ErrorAs(t, failed.Err, &se)
			}
		})
	}
}

func TestTransportError_IsFailure(t *testing.T) {
	srv := transfertest.New(t)
	url := srv.URL
	srv.Close()

	f := newFixture(t, &HTTPBackend{Timeout: time.Second})
	ctx := context.Background()
	sessionID, err := f.engine.OpenSession(ctx, requestContext(url, "r1"))
	require.NoError(t, err)

	_, err = f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "a.txt", "x"), "c")
	require.NoError(t, err)

	ev := f.rec.next(t)
	failed, ok := ev.result.(models.Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, common.ErrTransferFailed)
	assert.NotErrorIs(t, failed.Err, common.ErrCredentialUnavailable)
}

func TestOpenSession_Duplicate(t *testing.T) {
	f := newFixture(t, &HTTPBackend{})
	ctx := context.Background()
	rc := requestContext("http://127.0.0.1", "r1")

	_, err := f.engine.OpenSession(ctx, rc)
	require.NoError(t, err)
	_, err = f.engine.OpenSession(ctx, rc)
	assert.ErrorIs(t, err, common.ErrDuplicateSession)
}

func TestStart_RequiresRegistryMapping(t *testing.T) {
	f := newFixture(t, &HTTPBackend{})
	ctx := context.Background()

	sessionID := models.NewSessionID("ghost", group)
	_, err := f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "a.txt", "x"), "c")
	assert.ErrorIs(t, err, common.ErrSessionNotFound)

	_, err = f.engine.StartPostTransfer(ctx, sessionID, &models.CreatePostBody{})
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestStart_ReattachesPersistedSession(t *testing.T) {
	srv := transfertest.New(t)
	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second})
	ctx := context.Background()

	// registered by a previous process, no session in memory
	rc := requestContext(srv.URL, "r1")
	require.NoError(t, f.reg.Register(ctx, rc.SessionID(), rc))

	_, err := f.engine.StartFileTransfer(ctx, rc.SessionID(), 0, writeFile(t, "a.txt", "x"), "c")
	require.NoError(t, err)

	_, ok := f.rec.next(t).result.(models.Succeeded)
	assert.True(t, ok)
}

func TestFinish_InvalidatesAfterDrain(t *testing.T) {
	srv := transfertest.New(t)
	release := srv.Hold("slow.txt")

	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second})
	ctx := context.Background()
	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL, "r1"))
	require.NoError(t, err)

	taskID, err := f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "slow.txt", "x"), "c")
	require.NoError(t, err)
	assert.Equal(t, []string{taskID}, f.engine.LiveTasks(sessionID))

	f.engine.Finish(sessionID)
	select {
	case <-f.rec.invalid:
		t.Fatal("session invalidated with a task still running")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	f.rec.next(t)

	select {
	case id := <-f.rec.invalid:
		assert.Equal(t, sessionID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("session never invalidated")
	}
	assert.NoError(t, f.rec.errs[sessionID])
	assert.Nil(t, f.engine.LiveTasks(sessionID))
}

func TestCancel_ReportsFailure(t *testing.T) {
	srv := transfertest.New(t)
	srv.Hold("slow.txt")

	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second})
	ctx := context.Background()
	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL, "r1"))
	require.NoError(t, err)

	_, err = f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "slow.txt", "x"), "c")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.engine.LiveTasks(sessionID)) == 1 }, time.Second, 10*time.Millisecond)
	f.engine.Cancel(sessionID)

	failed, ok := f.rec.next(t).result.(models.Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, context.Canceled)
}

func mtlsServer(t *testing.T) (*transfertest.Server, *tlsx.Bundle, *x509.CertPool) {
	t.Helper()
	client, err := tlsx.SelfSigned("share-client", time.Hour)
	require.NoError(t, err)

	clientCAs := x509.NewCertPool()
	require.True(t, clientCAs.AppendCertsFromPEM(client.CertPEM))

	srv := transfertest.NewUnstarted()
	srv.TLS = &tls.Config{ClientAuth: tls.RequireAndVerifyClientCert, ClientCAs: clientCAs}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	return srv, client, roots
}

func TestAuthChallenge_UsesStoredCertificate(t *testing.T) {
	srv, client, roots := mtlsServer(t)
	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second, RootCAs: roots})
	ctx := context.Background()
	require.NoError(t, f.creds.SetSecret(ctx, "client-cert", client.PEM()))

	rc := requestContext(srv.URL, "r1")
	rc.CertificateName = "client-cert"
	sessionID, err := f.engine.OpenSession(ctx, rc)
	require.NoError(t, err)

	_, err = f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "a.txt", "x"), "c")
	require.NoError(t, err)

	ev := f.rec.next(t)
	_, ok := ev.result.(models.Succeeded)
	assert.True(t, ok, "expected success, got %#v", ev.result)
}

func TestAuthChallenge_MissingCertificateFails(t *testing.T) {
	srv, _, roots := mtlsServer(t)
	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second, RootCAs: roots})
	ctx := context.Background()

	rc := requestContext(srv.URL, "r1")
	rc.CertificateName = "absent"
	sessionID, err := f.engine.OpenSession(ctx, rc)
	require.NoError(t, err)

	_, err = f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "a.txt", "x"), "c")
	require.NoError(t, err)

	failed, ok := f.rec.next(t).result.(models.Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, common.ErrCredentialUnavailable)
	assert.ErrorIs(t, failed.Err, common.ErrTransferFailed)
	assert.Empty(t, srv.Uploads())
}

func TestAuthChallenge_NoCertificateConfiguredWhenOnlyRequested(t *testing.T) {
	srv := transfertest.NewUnstarted()
	srv.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())

	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second, RootCAs: roots})
	ctx := context.Background()
	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL, "r1"))
	require.NoError(t, err)

	_, err = f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "a.txt", "x"), "c")
	require.NoError(t, err)

	ev := f.rec.next(t)
	_, ok := ev.result.(models.Succeeded)
	assert.True(t, ok, "expected success, got %#v", ev.result)
	assert.Len(t, srv.Uploads(), 1)
}

func TestAuthChallenge_NoCertificateConfiguredWhenRequired(t *testing.T) {
	srv, _, roots := mtlsServer(t)
	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second, RootCAs: roots})
	ctx := context.Background()
	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL, "r1"))
	require.NoError(t, err)

	_, err = f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "a.txt", "x"), "c")
	require.NoError(t, err)

	_, ok := f.rec.next(t).result.(models.Failed)
	assert.True(t, ok)
	assert.Empty(t, srv.Uploads())
}

func TestStart_RefusesFinishedSession(t *testing.T) {
	srv := transfertest.New(t)
	f := newFixture(t, &HTTPBackend{Timeout: 5 * time.Second})
	ctx := context.Background()

	sessionID, err := f.engine.OpenSession(ctx, requestContext(srv.URL, "r1"))
	require.NoError(t, err)
	f.engine.Finish(sessionID)

	select {
	case <-f.rec.invalid:
	case <-time.After(5 * time.Second):
		t.Fatal("session never released")
	}

	// the mapping is still there, but the engine must not reattach
	_, err = f.engine.StartFileTransfer(ctx, sessionID, 0, writeFile(t, "a.txt", "x"), "c")
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
	assert.Empty(t, srv.Uploads())
}

type failingBackend struct{}

func (failingBackend) NewSession(string, Delegate) (Session, error) {
	return nil, errors.New("no transfer service")
}

func TestOpenSession_BackendFailureRollsBackRegistration(t *testing.T) {
	f := newFixture(t, failingBackend{})
	ctx := context.Background()
	rc := requestContext("http://127.0.0.1", "r1")

	_, err := f.engine.OpenSession(ctx, rc)
	require.Error(t, err)

	_, found, err := f.reg.Lookup(ctx, rc.SessionID())
	require.NoError(t, err)
	assert.False(t, found)
}
