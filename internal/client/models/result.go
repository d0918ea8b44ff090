package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/common"
)

// TransferResult is the outcome of one transfer task: either Succeeded or
// Failed. Handle it with a type switch.
type TransferResult interface {
	isTransferResult()
}

// Succeeded carries the id the server assigned to the uploaded file or post.
type Succeeded struct {
	ServerID string
}

// Failed carries the reason a task did not complete.
type Failed struct {
	Err error
}

func (Succeeded) isTransferResult() {}
func (Failed) isTransferResult()    {}

// TransferError describes a failed task. It matches common.ErrTransferFailed
// and unwraps to the underlying cause.
type TransferError struct {
	TaskID     string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("task %s: status %d: %v", e.TaskID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("task %s: %v", e.TaskID, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == common.ErrTransferFailed }

// FileFailure is per-file diagnostic detail attached to a failed outcome.
type FileFailure struct {
	Index    int
	Filename string
	Err      error
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("file %d (%s): %v", f.Index, f.Filename, f.Err)
}

func (f FileFailure) Unwrap() error { return f.Err }

// Outcome is the single result the host sees for a logical request.
type Outcome struct {
	RequestID string
	GroupID   string
	Success   bool
	PostID    string
	Err       error
	Failures  []FileFailure
	Duration  time.Duration
}
