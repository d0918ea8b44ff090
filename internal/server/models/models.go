// Package models defines the records the reference API server persists.
package models

import "time"

// File is the metadata of an uploaded blob. The content lives in the blob
// store under StorageKey.
type File struct {
	ID         string
	UserID     string
	ChannelID  string
	Name       string
	MimeType   string
	Size       int64
	StorageKey string
	CreatedAt  time.Time
}

// Post is a channel message, optionally referencing uploaded files in
// display order.
type Post struct {
	ID        string
	UserID    string
	ChannelID string
	RootID    string
	Message   string
	FileIDs   []string
	CreatedAt time.Time
}
