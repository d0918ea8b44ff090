package models

import "time"

// RequestState is the lifecycle stage of a logical request. It only moves
// forward.
type RequestState int

const (
	StateCreated RequestState = iota
	StateUploadingFiles
	StateAwaitingPostCreation
	StateCompleted
)

func (s RequestState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateUploadingFiles:
		return "uploading_files"
	case StateAwaitingPostCreation:
		return "awaiting_post_creation"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// CanAdvance reports whether moving from s to next is a forward transition.
// UploadingFiles may be skipped when the request has no files.
func (s RequestState) CanAdvance(next RequestState) bool {
	return next > s && next <= StateCompleted
}

// Manifest is the persisted journal of a logical request. Together with the
// registry's RequestContext it is enough to rebuild in-memory state after a
// restart.
type Manifest struct {
	SessionID string       `cbor:"session_id"`
	State     RequestState `cbor:"state"`
	Post      *PostPayload `cbor:"post"`
	UpdatedAt time.Time    `cbor:"updated_at"`
}
