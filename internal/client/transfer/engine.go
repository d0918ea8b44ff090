// Package transfer drives HTTP upload tasks inside per-request sessions and
// turns their raw completions into models.TransferResult values.
package transfer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/credentials"
	"github.com/dmitrijs2005/gophshare/internal/client/metrics"
	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/registry"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/dmitrijs2005/gophshare/internal/netx"
)

const (
	filesPath = "api/v4/files"
	postsPath = "api/v4/posts"

	filesField     = "files"
	channelIDField = "channel_id"
)

// ResultHandler consumes classified task results. The orchestrator
// implements it.
type ResultHandler interface {
	HandleTaskResult(ctx context.Context, sessionID, taskID string, result models.TransferResult)
	HandleSessionInvalid(ctx context.Context, sessionID string, err error)
}

type Engine struct {
	backend  Backend
	registry *registry.Registry
	creds    credentials.Resolver
	logger   logging.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	handler  ResultHandler
	sessions map[string]Session
	started  map[string]time.Time
	credErrs map[string]error
	finished map[string]struct{}
}

type Option func(*Engine)

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(backend Backend, reg *registry.Registry, creds credentials.Resolver, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		registry: reg,
		creds:    creds,
		logger:   logging.Discard(),
		sessions: make(map[string]Session),
		started:  make(map[string]time.Time),
		credErrs: make(map[string]error),
		finished: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("module", "transfer")
	return e
}

// SetHandler installs the receiver of task results. Results arriving
// before a handler is set are logged and dropped.
func (e *Engine) SetHandler(h ResultHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// OpenSession registers rc under its session id and creates the backend
// session. Nothing can be started for a session whose registration failed.
func (e *Engine) OpenSession(ctx context.Context, rc *models.RequestContext) (string, error) {
	sessionID := rc.SessionID()
	if err := e.registry.Register(ctx, sessionID, rc); err != nil {
		return "", err
	}

	s, err := e.backend.NewSession(sessionID, e)
	if err != nil {
		if rerr := e.registry.Remove(ctx, sessionID); rerr != nil {
			e.logger.Warn(ctx, "failed to roll back registration", "session", sessionID, "error", rerr)
		}
		return "", fmt.Errorf("open session %s: %w", sessionID, err)
	}

	e.mu.Lock()
	e.sessions[sessionID] = s
	delete(e.finished, sessionID)
	e.mu.Unlock()

	e.logger.Info(ctx, "session opened", "session", sessionID)
	return sessionID, nil
}

// session returns the live session for sessionID, reattaching a backend
// session when this process has none in memory. The registry mapping must
// exist and the session must not have been finished by this engine.
func (e *Engine) session(ctx context.Context, sessionID string) (Session, *models.RequestContext, error) {
	rc, ok, err := e.registry.Lookup(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", common.ErrSessionNotFound, sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, done := e.finished[sessionID]; done {
		return nil, nil, fmt.Errorf("%w: %s finished", common.ErrSessionNotFound, sessionID)
	}
	if s, ok := e.sessions[sessionID]; ok {
		return s, rc, nil
	}
	s, err := e.backend.NewSession(sessionID, e)
	if err != nil {
		return nil, nil, fmt.Errorf("attach session %s: %w", sessionID, err)
	}
	e.sessions[sessionID] = s
	e.logger.Debug(ctx, "session reattached", "session", sessionID)
	return s, rc, nil
}

// StartFileTransfer uploads fd as the index-th file of the session's post.
func (e *Engine) StartFileTransfer(ctx context.Context, sessionID string, index int, fd *models.FileDescriptor, channelID string) (string, error) {
	s, rc, err := e.session(ctx, sessionID)
	if err != nil {
		return "", err
	}

	u, err := url.JoinPath(rc.ServerURL, filesPath)
	if err != nil {
		return "", fmt.Errorf("%w: server url: %w", common.ErrInvalidRequest, err)
	}

	body, contentType := netx.MultipartFile(filesField, fd.Filename, fd.MimeType, fd.LocalPath,
		map[string]string{channelIDField: channelID})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		body.Close()
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	taskID := models.FileTaskID(sessionID, index)
	if err := e.start(ctx, s, taskID, req, rc.AuthToken); err != nil {
		body.Close()
		return "", err
	}
	return taskID, nil
}

// StartPostTransfer issues the post-creation call.
func (e *Engine) StartPostTransfer(ctx context.Context, sessionID string, post *models.CreatePostBody) (string, error) {
	s, rc, err := e.session(ctx, sessionID)
	if err != nil {
		return "", err
	}

	u, err := url.JoinPath(rc.ServerURL, postsPath)
	if err != nil {
		return "", fmt.Errorf("%w: server url: %w", common.ErrInvalidRequest, err)
	}

	body, err := netx.JSONBody(post)
	if err != nil {
		return "", fmt.Errorf("encode post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return "", fmt.Errorf("build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	taskID := models.PostTaskID(sessionID)
	if err := e.start(ctx, s, taskID, req, rc.AuthToken); err != nil {
		return "", err
	}
	return taskID, nil
}

func (e *Engine) start(ctx context.Context, s Session, taskID string, req *http.Request, token string) error {
	netx.SetBearer(req.Header, token)

	e.mu.Lock()
	e.started[taskID] = time.Now()
	e.mu.Unlock()

	if err := s.Start(taskID, req); err != nil {
		e.mu.Lock()
		delete(e.started, taskID)
		e.mu.Unlock()
		return fmt.Errorf("start %s: %w", taskID, err)
	}

	e.metrics.TransferStarted(taskKind(taskID))
	e.logger.Debug(ctx, "task started", "task", taskID)
	return nil
}

// LiveTasks lists tasks still running in this process for sessionID.
func (e *Engine) LiveTasks(sessionID string) []string {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Tasks()
}

// Cancel asks every task of the session to stop. Cancelled tasks still
// report a result.
func (e *Engine) Cancel(sessionID string) {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if ok {
		s.CancelAll()
	}
}

// Finish lets running tasks drain and then releases the session. No new
// task can be started for it afterwards.
func (e *Engine) Finish(sessionID string) {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	e.finished[sessionID] = struct{}{}
	e.mu.Unlock()
	if ok {
		s.Finish()
	}
}

func (e *Engine) OnTaskComplete(ctx context.Context, sessionID, taskID string, resp *Response, err error) {
	e.mu.Lock()
	startedAt, ok := e.started[taskID]
	delete(e.started, taskID)
	h := e.handler
	e.mu.Unlock()

	result := e.classify(sessionID, taskID, resp, err)

	var elapsed time.Duration
	if ok {
		elapsed = time.Since(startedAt)
	}
	_, succeeded := result.(models.Succeeded)
	e.metrics.TransferCompleted(taskKind(taskID), succeeded, elapsed)

	if f, failed := result.(models.Failed); failed {
		e.logger.Warn(ctx, "task failed", "task", taskID, "error", f.Err)
	} else {
		e.logger.Debug(ctx, "task succeeded", "task", taskID)
	}

	if h == nil {
		e.logger.Warn(ctx, "no result handler, dropping result", "task", taskID)
		return
	}
	h.HandleTaskResult(ctx, sessionID, taskID, result)
}

// OnAuthChallenge resolves the session's client certificate. A failure is
// remembered so the task error can be reported as a credential failure even
// when the TLS stack hides the cause.
func (e *Engine) OnAuthChallenge(ctx context.Context, sessionID string, _ *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	cert, err := e.resolveCertificate(ctx, sessionID)

	e.mu.Lock()
	if err != nil {
		e.credErrs[sessionID] = err
	} else {
		delete(e.credErrs, sessionID)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn(ctx, "client certificate unavailable", "session", sessionID, "error", err)
		return nil, err
	}
	return cert, nil
}

func (e *Engine) resolveCertificate(ctx context.Context, sessionID string) (*tls.Certificate, error) {
	rc, ok, err := e.registry.Lookup(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCredentialUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %s", common.ErrCredentialUnavailable, sessionID)
	}
	// Without a configured name the handshake proceeds with no certificate,
	// which servers that only request one accept.
	if rc.CertificateName == "" {
		return &tls.Certificate{}, nil
	}
	return credentials.LoadClientCertificate(ctx, e.creds, rc.CertificateName)
}

func (e *Engine) OnSessionBecameInvalid(ctx context.Context, sessionID string, err error) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	delete(e.credErrs, sessionID)
	h := e.handler
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn(ctx, "session invalidated", "session", sessionID, "error", err)
	} else {
		e.logger.Debug(ctx, "session finished", "session", sessionID)
	}
	if h != nil {
		h.HandleSessionInvalid(ctx, sessionID, err)
	}
}

type fileUploadResponse struct {
	FileInfos []struct {
		ID string `json:"id"`
	} `json:"file_infos"`
}

type postResponse struct {
	ID string `json:"id"`
}

// classify maps a raw completion onto Succeeded or Failed. Every failure is
// a *models.TransferError.
func (e *Engine) classify(sessionID, taskID string, resp *Response, err error) models.TransferResult {
	if err != nil {
		e.mu.Lock()
		credErr := e.credErrs[sessionID]
		e.mu.Unlock()
		if credErr != nil && !errors.Is(err, common.ErrCredentialUnavailable) {
			err = fmt.Errorf("%w: %w", credErr, err)
		}
		return models.Failed{Err: &models.TransferError{TaskID: taskID, Err: err}}
	}
	if resp == nil {
		return models.Failed{Err: &models.TransferError{TaskID: taskID, Err: io.ErrUnexpectedEOF}}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(resp.Body)
		if len(body) > 1024 {
			body = body[:1024]
		}
		return models.Failed{Err: &models.TransferError{
			TaskID:     taskID,
			StatusCode: resp.StatusCode,
			Err:        &netx.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body},
		}}
	}

	id, err := parseServerID(taskID, resp.Body)
	if err != nil {
		return models.Failed{Err: &models.TransferError{TaskID: taskID, StatusCode: resp.StatusCode, Err: err}}
	}
	return models.Succeeded{ServerID: id}
}

func parseServerID(taskID string, body []byte) (string, error) {
	ref, err := models.ParseTaskID(taskID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}

	switch ref.Kind {
	case models.TaskFile:
		var r fileUploadResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
		}
		if len(r.FileInfos) == 0 || r.FileInfos[0].ID == "" {
			return "", fmt.Errorf("%w: no file id in upload response", common.ErrMalformedResponse)
		}
		return r.FileInfos[0].ID, nil
	case models.TaskPost:
		var r postResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
		}
		if r.ID == "" {
			return "", fmt.Errorf("%w: no post id in response", common.ErrMalformedResponse)
		}
		return r.ID, nil
	default:
		return "", fmt.Errorf("%w: unknown task kind", common.ErrMalformedResponse)
	}
}

func taskKind(taskID string) string {
	ref, err := models.ParseTaskID(taskID)
	if err != nil {
		return "unknown"
	}
	return ref.Kind.String()
}
