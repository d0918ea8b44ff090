package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/common"
)

// lookup returns the in-memory request for sessionID, rebuilding it from
// the registry and the manifest when this process has not seen it. It
// returns nil, nil when no registry mapping exists.
func (o *Orchestrator) lookup(ctx context.Context, sessionID string) (*request, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if req, ok := o.active[sessionID]; ok {
		return req, nil
	}

	rc, ok, err := o.registry.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	req := &request{
		sessionID: sessionID,
		rc:        rc,
		state:     models.StateCreated,
		startedAt: rc.CreatedAt,
		recovered: true,
	}

	m, err := o.manifests.load(ctx, rc.GroupID, sessionID)
	switch {
	case err != nil:
		req.broken = fmt.Errorf("%w: %w", common.ErrInsufficientContext, err)
	case m == nil || m.Post == nil:
		req.broken = fmt.Errorf("%w: no manifest for %s", common.ErrInsufficientContext, sessionID)
	case m.State == models.StateCompleted:
		req.broken = fmt.Errorf("%w: manifest for %s is already completed", common.ErrInsufficientContext, sessionID)
	default:
		req.state = m.State
		req.post = m.Post
	}
	if req.post == nil {
		req.post = &models.PostPayload{}
	}

	o.active[sessionID] = req
	o.dispatcher.Begin()
	o.metrics.RequestStarted()
	o.metrics.RequestRecovered("rehydrated")

	if req.broken != nil {
		o.logger.Warn(ctx, "request cannot be rebuilt", "session", sessionID, "error", req.broken)
	} else {
		o.logger.Info(ctx, "request rehydrated", "session", sessionID, "state", req.state.String(),
			"pending", req.post.Pending())
	}
	return req, nil
}

// Resume picks up every persisted request of groupID that this process did
// not start. Files without a server id and without a running task are
// uploaded again, and the post is issued once all ids are known. Requests
// the host started in the foreground cannot be resumed and are failed.
// It returns how many requests had work restarted.
func (o *Orchestrator) Resume(ctx context.Context, groupID string) (int, error) {
	entries, err := o.registry.List(ctx, groupID)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, e := range entries {
		req, err := o.lookup(ctx, e.SessionID)
		if err != nil {
			o.logger.Warn(ctx, "skipping session", "session", e.SessionID, "error", err)
			continue
		}
		if req == nil || !req.recovered {
			continue
		}

		live := make(map[string]bool)
		for _, id := range o.transfers.LiveTasks(e.SessionID) {
			live[id] = true
		}

		req.mu.Lock()
		if req.state == models.StateCompleted {
			req.mu.Unlock()
			continue
		}
		var actions []action
		switch {
		case req.broken != nil:
			o.completeLocked(req, req.broken)
		case !req.rc.IsBackgroundInitiated:
			o.completeLocked(req, fmt.Errorf("%w: %s was started in the foreground", common.ErrRequestAbandoned, e.SessionID))
		default:
			actions = o.resumeLocked(req, live)
		}
		done := req.state == models.StateCompleted
		if !done && len(actions) > 0 {
			if err := o.persistLocked(ctx, req); err != nil {
				o.logger.Warn(ctx, "failed to journal progress", "session", e.SessionID, "error", err)
			}
		}
		req.mu.Unlock()

		if done {
			o.finalize(ctx, req)
			continue
		}
		if len(actions) > 0 {
			resumed++
			o.metrics.RequestRecovered("resumed")
			o.logger.Info(ctx, "resuming request", "session", e.SessionID, "tasks", len(actions))
			o.run(ctx, req, actions)
		}
	}
	return resumed, nil
}

func (o *Orchestrator) resumeLocked(req *request, live map[string]bool) []action {
	postTask := models.PostTaskID(req.sessionID)

	switch req.state {
	case models.StateCreated, models.StateUploadingFiles:
		if req.post.Pending() == 0 {
			if live[postTask] {
				return nil
			}
			return o.postActionLocked(req)
		}
		req.advance(models.StateUploadingFiles)

		var actions []action
		for i, fd := range req.post.Files {
			if fd.Uploaded() || live[models.FileTaskID(req.sessionID, i)] {
				continue
			}
			actions = append(actions, fileAction(req, i))
		}
		return actions

	case models.StateAwaitingPostCreation:
		if live[postTask] {
			return nil
		}
		body, err := req.post.Body()
		if err != nil {
			o.completeLocked(req, fmt.Errorf("%w: %w", common.ErrInsufficientContext, err))
			return nil
		}
		return []action{{kind: models.TaskPost, body: body}}
	}
	return nil
}

// Sweep fails and reclaims requests of groupID older than ttl that have no
// running task, then deletes manifests left without a registry entry. It
// returns the number of records reclaimed.
func (o *Orchestrator) Sweep(ctx context.Context, groupID string, ttl time.Duration) (int, error) {
	entries, err := o.registry.List(ctx, groupID)
	if err != nil {
		return 0, err
	}

	now := o.now()
	reclaimed := 0
	for _, e := range entries {
		if now.Sub(e.Context.CreatedAt) < ttl {
			continue
		}
		if len(o.transfers.LiveTasks(e.SessionID)) > 0 {
			continue
		}

		req, err := o.lookup(ctx, e.SessionID)
		if err != nil || req == nil {
			continue
		}

		req.mu.Lock()
		if req.state == models.StateCompleted {
			req.mu.Unlock()
			continue
		}
		o.completeLocked(req, fmt.Errorf("%w: no progress within %s", common.ErrRequestAbandoned, ttl))
		req.mu.Unlock()

		o.finalize(ctx, req)
		o.metrics.RequestRecovered("swept")
		reclaimed++
	}

	ids, err := o.manifests.sessions(ctx, groupID)
	if err != nil {
		return reclaimed, err
	}
	for _, id := range ids {
		_, ok, err := o.registry.Lookup(ctx, id)
		if err != nil || ok {
			continue
		}
		if err := o.manifests.delete(ctx, groupID, id); err != nil {
			o.logger.Warn(ctx, "failed to delete orphan manifest", "session", id, "error", err)
			continue
		}
		reclaimed++
	}

	if reclaimed > 0 {
		o.logger.Info(ctx, "swept orphaned requests", "group", groupID, "reclaimed", reclaimed)
	}
	return reclaimed, nil
}
