// Package orchestrator owns the lifecycle of logical share requests: it
// validates a submission, fans out one upload per file, collects the ids the
// server assigns and finishes with the post-creation call.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/dispatcher"
	"github.com/dmitrijs2005/gophshare/internal/client/metrics"
	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/registry"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/cryptox"
	"github.com/dmitrijs2005/gophshare/internal/filex"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/google/uuid"
)

// Transfers is the part of the transfer engine the orchestrator drives.
type Transfers interface {
	OpenSession(ctx context.Context, rc *models.RequestContext) (string, error)
	StartFileTransfer(ctx context.Context, sessionID string, index int, fd *models.FileDescriptor, channelID string) (string, error)
	StartPostTransfer(ctx context.Context, sessionID string, post *models.CreatePostBody) (string, error)
	LiveTasks(sessionID string) []string
	Cancel(sessionID string)
	Finish(sessionID string)
}

// Submission is what the host hands over for one logical request.
type Submission struct {
	GroupID    string
	ChannelID  string
	RootID     string
	Message    string
	Files      []string
	Background bool
}

type request struct {
	mu        sync.Mutex
	sessionID string
	rc        *models.RequestContext
	state     models.RequestState
	post      *models.PostPayload
	postID    string
	err       error
	failures  []models.FileFailure
	startedAt time.Time

	// recovered is set when the request was rebuilt from persisted state.
	recovered bool
	// broken holds the reason a recovered request cannot continue.
	broken error
}

func (r *request) advance(next models.RequestState) bool {
	if !r.state.CanAdvance(next) {
		return false
	}
	r.state = next
	return true
}

type action struct {
	kind      models.TaskKind
	index     int
	file      models.FileDescriptor
	channelID string
	body      *models.CreatePostBody
}

type Orchestrator struct {
	transfers  Transfers
	registry   *registry.Registry
	prefs      bucket.Repository
	manifests  *manifestStore
	dispatcher *dispatcher.Dispatcher
	logger     logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string

	mu     sync.Mutex
	active map[string]*request

	subMu       sync.RWMutex
	subscribers map[chan models.Outcome]struct{}
}

type Option func(*Orchestrator)

func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSealer protects persisted manifests.
func WithSealer(s registry.Sealer) Option {
	return func(o *Orchestrator) { o.manifests.sealer = s }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRequestIDs replaces the request id generator.
func WithRequestIDs(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// New wires an orchestrator. store holds both host preferences and the
// request manifests.
func New(transfers Transfers, reg *registry.Registry, store bucket.Repository, d *dispatcher.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transfers:   transfers,
		registry:    reg,
		prefs:       store,
		manifests:   &manifestStore{store: store, sealer: cryptox.Plain{}},
		dispatcher:  d,
		logger:      logging.Discard(),
		now:         time.Now,
		newID:       uuid.NewString,
		active:      make(map[string]*request),
		subscribers: make(map[chan models.Outcome]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("module", "orchestrator")
	return o
}

// Submit validates sub, opens a transfer session and starts the uploads.
// It returns as soon as the transfers are queued; the result arrives as an
// Outcome on Subscribe channels.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (string, error) {
	if err := validate(sub); err != nil {
		return "", err
	}

	prefs, err := o.preferences(ctx, sub.GroupID)
	if err != nil {
		return "", err
	}

	files, err := inspectFiles(sub.Files, prefs.maxFileSize)
	if err != nil {
		return "", err
	}

	rc := &models.RequestContext{
		RequestID:             o.newID(),
		GroupID:               sub.GroupID,
		ServerURL:             prefs.serverURL,
		AuthToken:             prefs.token,
		CertificateName:       prefs.certificateName,
		IsBackgroundInitiated: sub.Background,
		CreatedAt:             o.now().UTC(),
	}
	post := &models.PostPayload{
		ChannelID: sub.ChannelID,
		UserID:    prefs.userID,
		Message:   sub.Message,
		RootID:    sub.RootID,
		Files:     files,
	}

	o.dispatcher.Begin()
	sessionID, err := o.transfers.OpenSession(ctx, rc)
	if err != nil {
		o.dispatcher.MarkRequestDone()
		return "", fmt.Errorf("open session: %w", err)
	}
	o.metrics.RequestStarted()

	req := &request{
		sessionID: sessionID,
		rc:        rc,
		state:     models.StateCreated,
		post:      post,
		startedAt: o.now(),
	}
	o.mu.Lock()
	o.active[sessionID] = req
	o.mu.Unlock()

	o.logger.Info(ctx, "request submitted", "request", rc.RequestID, "session", sessionID, "files", len(files))

	ctx = context.WithoutCancel(ctx)

	req.mu.Lock()
	actions := o.beginLocked(req)
	if err = o.persistLocked(ctx, req); err != nil {
		o.completeLocked(req, err)
	}
	done := req.state == models.StateCompleted
	req.mu.Unlock()

	if done {
		o.finalize(ctx, req)
		if err != nil {
			return "", err
		}
		return rc.RequestID, nil
	}

	o.run(ctx, req, actions)
	return rc.RequestID, nil
}

func validate(sub Submission) error {
	if sub.GroupID == "" {
		return fmt.Errorf("%w: group id is required", common.ErrInvalidRequest)
	}
	if sub.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", common.ErrInvalidRequest)
	}
	if len(sub.Files) == 0 && strings.TrimSpace(sub.Message) == "" {
		return fmt.Errorf("%w: nothing to share", common.ErrInvalidRequest)
	}
	return nil
}

type preferences struct {
	serverURL       string
	token           string
	userID          string
	certificateName string
	maxFileSize     int64
}

func (o *Orchestrator) preferences(ctx context.Context, groupID string) (*preferences, error) {
	p := &preferences{}
	required := []struct {
		key string
		dst *string
	}{
		{common.PrefServerURL, &p.serverURL},
		{common.PrefToken, &p.token},
		{common.PrefCurrentUserID, &p.userID},
	}
	for _, r := range required {
		v, ok, err := bucket.GetString(ctx, o.prefs, groupID, r.key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", common.ErrMissingPreference, r.key)
		}
		*r.dst = v
	}

	cert, _, err := bucket.GetString(ctx, o.prefs, groupID, common.PrefCertificateName)
	if err != nil {
		return nil, err
	}
	p.certificateName = cert

	limit, ok, err := bucket.GetString(ctx, o.prefs, groupID, common.PrefMaxFileSize)
	if err != nil {
		return nil, err
	}
	if ok {
		p.maxFileSize, err = strconv.ParseInt(limit, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", common.ErrMissingPreference, common.PrefMaxFileSize, limit)
		}
	}
	return p, nil
}

func inspectFiles(paths []string, limit int64) ([]*models.FileDescriptor, error) {
	files := make([]*models.FileDescriptor, 0, len(paths))
	for _, p := range paths {
		a, err := filex.Inspect(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
		}
		if limit > 0 && a.Size > limit {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", common.ErrFileTooLarge, a.Name, a.Size, limit)
		}
		files = append(files, &models.FileDescriptor{
			LocalPath:    a.Path,
			Filename:     a.Name,
			MimeType:     a.MimeType,
			DeclaredSize: a.Size,
		})
	}
	return files, nil
}

// Active reports how many requests this process is tracking.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}
