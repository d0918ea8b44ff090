// Package models defines the data the share coordinator persists and passes
// between its components.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RequestContext is the durable record needed to keep handling a transfer
// session after the process restarts.
type RequestContext struct {
	RequestID             string    `cbor:"request_id" json:"request_id"`
	GroupID               string    `cbor:"group_id" json:"group_id"`
	ServerURL             string    `cbor:"server_url" json:"server_url"`
	AuthToken             string    `cbor:"auth_token" json:"-"`
	CertificateName       string    `cbor:"certificate_name,omitempty" json:"certificate_name,omitempty"`
	IsBackgroundInitiated bool      `cbor:"background" json:"background"`
	CreatedAt             time.Time `cbor:"created_at" json:"created_at"`
}

// SessionID derives the transfer session identifier. The group is embedded
// so a relaunched process can tell which namespace a session belongs to
// from the identifier alone.
func (rc *RequestContext) SessionID() string {
	return NewSessionID(rc.RequestID, rc.GroupID)
}

const sessionSep = "@"

func NewSessionID(requestID, groupID string) string {
	return requestID + sessionSep + groupID
}

// ParseSessionID splits a session identifier into request and group ids.
func ParseSessionID(sessionID string) (requestID, groupID string, ok bool) {
	requestID, groupID, ok = strings.Cut(sessionID, sessionSep)
	if !ok || requestID == "" || groupID == "" {
		return "", "", false
	}
	return requestID, groupID, true
}

// TaskKind tells file uploads and the final post call apart.
type TaskKind int

const (
	TaskFile TaskKind = iota + 1
	TaskPost
)

func (k TaskKind) String() string {
	switch k {
	case TaskFile:
		return "file"
	case TaskPost:
		return "post"
	default:
		return "unknown"
	}
}

// FileTaskID returns the stable task identifier for the file at index.
func FileTaskID(sessionID string, index int) string {
	return fmt.Sprintf("%s/file/%d", sessionID, index)
}

// PostTaskID returns the task identifier for the post-creation call.
func PostTaskID(sessionID string) string {
	return sessionID + "/post"
}

// TaskRef is a parsed task identifier.
type TaskRef struct {
	SessionID string
	Kind      TaskKind
	Index     int
}

// ParseTaskID reverses FileTaskID and PostTaskID.
func ParseTaskID(taskID string) (TaskRef, error) {
	if session, ok := strings.CutSuffix(taskID, "/post"); ok && session != "" {
		return TaskRef{SessionID: session, Kind: TaskPost, Index: -1}, nil
	}

	i := strings.LastIndex(taskID, "/file/")
	if i <= 0 {
		return TaskRef{}, fmt.Errorf("malformed task id %q", taskID)
	}
	index, err := strconv.Atoi(taskID[i+len("/file/"):])
	if err != nil || index < 0 {
		return TaskRef{}, fmt.Errorf("malformed task index in %q", taskID)
	}
	return TaskRef{SessionID: taskID[:i], Kind: TaskFile, Index: index}, nil
}
