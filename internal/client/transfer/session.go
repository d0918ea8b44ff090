package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// maxResponseBody bounds how much of a response body is buffered for the
// completion callback.
const maxResponseBody = 1 << 20

var (
	ErrSessionInvalidated = errors.New("session invalidated")
	ErrDuplicateTask      = errors.New("task already running")
)

// Response is the buffered result of a finished task.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Delegate receives callbacks from a Session. Callbacks are delivered on the
// task's goroutine and never while the session holds its own lock.
type Delegate interface {
	// OnTaskComplete is called exactly once per started task. Either resp or
	// err is set.
	OnTaskComplete(ctx context.Context, sessionID, taskID string, resp *Response, err error)
	// OnAuthChallenge is asked for a client certificate when the server
	// requests one.
	OnAuthChallenge(ctx context.Context, sessionID string, info *tls.CertificateRequestInfo) (*tls.Certificate, error)
	// OnSessionBecameInvalid is called once, after Finish and the last task
	// completed or after Invalidate. err is nil for a normal finish.
	OnSessionBecameInvalid(ctx context.Context, sessionID string, err error)
}

// Session runs transfer tasks for one logical request.
type Session interface {
	ID() string
	Start(taskID string, req *http.Request) error
	Tasks() []string
	Cancel(taskID string)
	CancelAll()
	// Finish stops accepting tasks and invalidates the session once running
	// tasks have reported.
	Finish()
	Invalidate(err error)
}

// Backend creates sessions.
type Backend interface {
	NewSession(sessionID string, d Delegate) (Session, error)
}

// HTTPBackend runs tasks over net/http. Each session gets its own transport
// so the client certificate chosen for one session is never reused by
// another.
type HTTPBackend struct {
	Timeout time.Duration
	RootCAs *x509.CertPool
}

func (b *HTTPBackend) NewSession(sessionID string, d Delegate) (Session, error) {
	if d == nil {
		return nil, fmt.Errorf("nil delegate for session %s", sessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &httpSession{
		id:     sessionID,
		d:      d,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]context.CancelFunc),
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    b.RootCAs,
		GetClientCertificate: func(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return d.OnAuthChallenge(info.Context(), sessionID, info)
		},
	}
	s.client = &http.Client{Transport: transport, Timeout: b.Timeout}
	return s, nil
}

type httpSession struct {
	id     string
	d      Delegate
	client *http.Client
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	tasks       map[string]context.CancelFunc
	finishing   bool
	invalidated bool
}

func (s *httpSession) ID() string { return s.id }

func (s *httpSession) Start(taskID string, req *http.Request) error {
	s.mu.Lock()
	if s.invalidated || s.finishing {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionInvalidated, s.id)
	}
	if _, ok := s.tasks[taskID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTask, taskID)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.tasks[taskID] = cancel
	s.mu.Unlock()

	go s.run(ctx, taskID, req.WithContext(ctx))
	return nil
}

func (s *httpSession) run(ctx context.Context, taskID string, req *http.Request) {
	resp, err := s.do(req)

	s.mu.Lock()
	if cancel, ok := s.tasks[taskID]; ok {
		cancel()
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()

	s.d.OnTaskComplete(context.WithoutCancel(ctx), s.id, taskID, resp, err)

	s.mu.Lock()
	done := s.finishing && len(s.tasks) == 0 && !s.invalidated
	if done {
		s.invalidated = true
	}
	s.mu.Unlock()

	if done {
		s.cancel()
		s.d.OnSessionBecameInvalid(context.Background(), s.id, nil)
	}
}

func (s *httpSession) do(req *http.Request) (*Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}, nil
}

func (s *httpSession) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *httpSession) Cancel(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.tasks[taskID]; ok {
		cancel()
	}
}

func (s *httpSession) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.tasks {
		cancel()
	}
}

func (s *httpSession) Finish() {
	s.mu.Lock()
	if s.finishing || s.invalidated {
		s.mu.Unlock()
		return
	}
	s.finishing = true
	done := len(s.tasks) == 0
	if done {
		s.invalidated = true
	}
	s.mu.Unlock()

	if done {
		s.cancel()
		s.d.OnSessionBecameInvalid(context.Background(), s.id, nil)
	}
}

// Invalidate cancels every task and invalidates the session immediately.
// Cancelled tasks still report through OnTaskComplete.
func (s *httpSession) Invalidate(err error) {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	s.mu.Unlock()

	s.cancel()
	s.d.OnSessionBecameInvalid(context.Background(), s.id, err)
}
