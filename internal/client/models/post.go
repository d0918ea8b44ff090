package models

import (
	"errors"
	"fmt"
)

// FileDescriptor is one attachment of a logical request.
type FileDescriptor struct {
	LocalPath        string `cbor:"local_path" json:"local_path"`
	Filename         string `cbor:"filename" json:"filename"`
	MimeType         string `cbor:"mime_type" json:"mime_type"`
	DeclaredSize     int64  `cbor:"size" json:"size"`
	ServerAssignedID string `cbor:"server_id,omitempty" json:"server_id,omitempty"`
}

var ErrServerIDAlreadySet = errors.New("server assigned id already set")

// Uploaded reports whether the server already assigned an id.
func (f *FileDescriptor) Uploaded() bool {
	return f.ServerAssignedID != ""
}

// SetServerID records the id returned by the upload. It is written once.
func (f *FileDescriptor) SetServerID(id string) error {
	if id == "" {
		return fmt.Errorf("empty server id for %s", f.Filename)
	}
	if f.ServerAssignedID != "" {
		return ErrServerIDAlreadySet
	}
	f.ServerAssignedID = id
	return nil
}

// PostPayload is the message plus its ordered attachments.
type PostPayload struct {
	ChannelID string            `cbor:"channel_id" json:"channel_id"`
	UserID    string            `cbor:"user_id" json:"user_id"`
	Message   string            `cbor:"message" json:"message"`
	RootID    string            `cbor:"root_id,omitempty" json:"root_id,omitempty"`
	Files     []*FileDescriptor `cbor:"files" json:"files"`
}

// Pending counts files without a server id.
func (p *PostPayload) Pending() int {
	n := 0
	for _, f := range p.Files {
		if !f.Uploaded() {
			n++
		}
	}
	return n
}

// FileIDs returns server ids in descriptor order. It fails if any file has
// not been uploaded yet.
func (p *PostPayload) FileIDs() ([]string, error) {
	ids := make([]string, 0, len(p.Files))
	for i, f := range p.Files {
		if !f.Uploaded() {
			return nil, fmt.Errorf("file %d (%s) has no server id", i, f.Filename)
		}
		ids = append(ids, f.ServerAssignedID)
	}
	return ids, nil
}

// CreatePostBody is the JSON body of the post-creation call.
type CreatePostBody struct {
	UserID    string   `json:"user_id"`
	ChannelID string   `json:"channel_id"`
	Message   string   `json:"message"`
	RootID    string   `json:"root_id,omitempty"`
	FileIDs   []string `json:"file_ids"`
}

// Body builds the post-creation request body.
func (p *PostPayload) Body() (*CreatePostBody, error) {
	ids, err := p.FileIDs()
	if err != nil {
		return nil, err
	}
	return &CreatePostBody{
		UserID:    p.UserID,
		ChannelID: p.ChannelID,
		Message:   p.Message,
		RootID:    p.RootID,
		FileIDs:   ids,
	}, nil
}

// Clone deep-copies the payload so callers cannot mutate orchestrator state.
func (p *PostPayload) Clone() *PostPayload {
	c := *p
	c.Files = make([]*FileDescriptor, len(p.Files))
	for i, f := range p.Files {
		fc := *f
		c.Files[i] = &fc
	}
	return &c
}
