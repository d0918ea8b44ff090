package orchestrator

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/common"
)

// beginLocked moves a fresh request out of Created. Without files it goes
// straight to the post.
func (o *Orchestrator) beginLocked(req *request) []action {
	if len(req.post.Files) == 0 {
		return o.postActionLocked(req)
	}
	req.advance(models.StateUploadingFiles)

	actions := make([]action, 0, len(req.post.Files))
	for i, fd := range req.post.Files {
		if fd.Uploaded() {
			continue
		}
		actions = append(actions, fileAction(req, i))
	}
	return actions
}

func fileAction(req *request, index int) action {
	return action{
		kind:      models.TaskFile,
		index:     index,
		file:      *req.post.Files[index],
		channelID: req.post.ChannelID,
	}
}

// postActionLocked enters AwaitingPostCreation and returns the post call.
// Every file must have its server id by now.
func (o *Orchestrator) postActionLocked(req *request) []action {
	body, err := req.post.Body()
	if err != nil {
		o.completeLocked(req, fmt.Errorf("%w: %w", common.ErrInsufficientContext, err))
		return nil
	}
	req.advance(models.StateAwaitingPostCreation)
	return []action{{kind: models.TaskPost, body: body}}
}

func (o *Orchestrator) persistLocked(ctx context.Context, req *request) error {
	return o.manifests.save(ctx, req.rc.GroupID, &models.Manifest{
		SessionID: req.sessionID,
		State:     req.state,
		Post:      req.post,
		UpdatedAt: o.now().UTC(),
	})
}

func (o *Orchestrator) completeLocked(req *request, err error) {
	req.advance(models.StateCompleted)
	req.err = err
}

// run starts the transfers decided under the request lock. A start that
// fails is fed back as a failed result.
func (o *Orchestrator) run(ctx context.Context, req *request, actions []action) {
	for _, a := range actions {
		req.mu.Lock()
		done := req.state == models.StateCompleted
		req.mu.Unlock()
		if done {
			return
		}

		var (
			taskID string
			err    error
		)
		switch a.kind {
		case models.TaskFile:
			taskID = models.FileTaskID(req.sessionID, a.index)
			file := a.file
			_, err = o.transfers.StartFileTransfer(ctx, req.sessionID, a.index, &file, a.channelID)
		case models.TaskPost:
			taskID = models.PostTaskID(req.sessionID)
			_, err = o.transfers.StartPostTransfer(ctx, req.sessionID, a.body)
		}

		if err != nil {
			o.logger.Warn(ctx, "failed to start transfer", "task", taskID, "error", err)
			o.HandleTaskResult(ctx, req.sessionID, taskID,
				models.Failed{Err: &models.TransferError{TaskID: taskID, Err: err}})
		}
	}
}

// HandleTaskResult applies one transfer result to its request. Results for
// unknown sessions and for requests that already completed are ignored.
func (o *Orchestrator) HandleTaskResult(ctx context.Context, sessionID, taskID string, result models.TransferResult) {
	ref, err := models.ParseTaskID(taskID)
	if err != nil || ref.SessionID != sessionID {
		o.logger.Warn(ctx, "ignoring result with foreign task id", "session", sessionID, "task", taskID)
		return
	}

	req, err := o.lookup(ctx, sessionID)
	if err != nil {
		o.logger.Error(ctx, "failed to load request", "session", sessionID, "error", err)
		return
	}
	if req == nil {
		o.logger.Debug(ctx, "ignoring result for unknown session", "task", taskID)
		return
	}

	req.mu.Lock()
	if req.state == models.StateCompleted {
		req.mu.Unlock()
		o.logger.Debug(ctx, "ignoring late result", "task", taskID)
		return
	}

	var actions []action
	if req.broken != nil {
		o.completeLocked(req, req.broken)
	} else {
		switch r := result.(type) {
		case models.Succeeded:
			actions = o.onSuccessLocked(ctx, req, ref, r)
		case models.Failed:
			o.onFailureLocked(ctx, req, ref, r)
		}
	}

	done := req.state == models.StateCompleted
	if !done {
		if err := o.persistLocked(ctx, req); err != nil {
			o.logger.Warn(ctx, "failed to journal progress", "session", sessionID, "error", err)
		}
	}
	req.mu.Unlock()

	if done {
		o.finalize(ctx, req)
		return
	}
	o.run(ctx, req, actions)
}

func (o *Orchestrator) onSuccessLocked(ctx context.Context, req *request, ref models.TaskRef, r models.Succeeded) []action {
	switch ref.Kind {
	case models.TaskFile:
		if ref.Index >= len(req.post.Files) {
			o.logger.Warn(ctx, "result for unknown file index", "session", req.sessionID, "index", ref.Index)
			return nil
		}
		fd := req.post.Files[ref.Index]
		if err := fd.SetServerID(r.ServerID); err != nil {
			o.logger.Warn(ctx, "ignoring second id for file", "file", fd.Filename, "error", err)
			return nil
		}
		if req.post.Pending() > 0 {
			return nil
		}
		return o.postActionLocked(req)

	case models.TaskPost:
		if req.state != models.StateAwaitingPostCreation {
			o.logger.Warn(ctx, "post result before files finished", "session", req.sessionID)
			return nil
		}
		req.postID = r.ServerID
		o.completeLocked(req, nil)
	}
	return nil
}

func (o *Orchestrator) onFailureLocked(ctx context.Context, req *request, ref models.TaskRef, r models.Failed) {
	switch ref.Kind {
	case models.TaskFile:
		name := ""
		if ref.Index < len(req.post.Files) {
			fd := req.post.Files[ref.Index]
			if fd.Uploaded() {
				o.logger.Debug(ctx, "ignoring failure for uploaded file", "file", fd.Filename)
				return
			}
			name = fd.Filename
		}
		req.failures = append(req.failures, models.FileFailure{Index: ref.Index, Filename: name, Err: r.Err})
		o.completeLocked(req, fmt.Errorf("upload %q: %w", name, r.Err))

	case models.TaskPost:
		o.completeLocked(req, fmt.Errorf("create post: %w", r.Err))
	}
}

// HandleSessionInvalid fails the request when its session was torn down
// with an error. A clean finish needs no action.
func (o *Orchestrator) HandleSessionInvalid(ctx context.Context, sessionID string, err error) {
	if err == nil {
		return
	}

	o.mu.Lock()
	req, ok := o.active[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}

	req.mu.Lock()
	if req.state == models.StateCompleted {
		req.mu.Unlock()
		return
	}
	o.completeLocked(req, fmt.Errorf("%w: session invalidated: %w", common.ErrTransferFailed, err))
	req.mu.Unlock()

	o.finalize(ctx, req)
}

// finalize runs once per request after it reached Completed: it drops
// persisted state, stops the session, publishes the outcome and releases the
// completion gate.
func (o *Orchestrator) finalize(ctx context.Context, req *request) {
	ctx = context.WithoutCancel(ctx)

	req.mu.Lock()
	out := models.Outcome{
		RequestID: req.rc.RequestID,
		GroupID:   req.rc.GroupID,
		Success:   req.err == nil,
		PostID:    req.postID,
		Err:       req.err,
		Failures:  append([]models.FileFailure(nil), req.failures...),
		Duration:  o.now().Sub(req.startedAt),
	}
	req.mu.Unlock()

	// The mapping goes first so nothing can reattach the session once it is
	// finished.
	if err := o.registry.Remove(ctx, req.sessionID); err != nil {
		o.logger.Warn(ctx, "failed to remove registry entry", "session", req.sessionID, "error", err)
	}
	if err := o.manifests.delete(ctx, req.rc.GroupID, req.sessionID); err != nil {
		o.logger.Warn(ctx, "failed to delete manifest", "session", req.sessionID, "error", err)
	}

	if !out.Success {
		o.transfers.Cancel(req.sessionID)
	}
	o.transfers.Finish(req.sessionID)

	o.mu.Lock()
	delete(o.active, req.sessionID)
	o.mu.Unlock()

	o.metrics.RequestCompleted(out.Success, out.Duration)
	if out.Success {
		o.logger.Info(ctx, "request completed", "request", out.RequestID, "post", out.PostID, "duration", out.Duration)
	} else {
		o.logger.Warn(ctx, "request failed", "request", out.RequestID, "error", out.Err)
	}

	o.publish(ctx, out)
	o.dispatcher.MarkRequestDone()
}
