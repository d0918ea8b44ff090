package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/dmitrijs2005/gophshare/internal/server/blobstore"
	"github.com/dmitrijs2005/gophshare/internal/server/models"
	"github.com/dmitrijs2005/gophshare/internal/server/repositories/repomanager"
	"github.com/gabriel-vasile/mimetype"
)

// Upload is one file received from a client.
type Upload struct {
	UserID    string
	ChannelID string
	Name      string
	Size      int64
	Body      io.ReadSeeker
}

type FileService struct {
	repos   repomanager.RepositoryManager
	blobs   blobstore.Store
	maxSize int64
	logger  logging.Logger
}

// NewFileService returns a file service. maxSize <= 0 disables the limit.
func NewFileService(repos repomanager.RepositoryManager, blobs blobstore.Store, maxSize int64, l logging.Logger) *FileService {
	return &FileService{repos: repos, blobs: blobs, maxSize: maxSize, logger: l.With("module", "files")}
}

// Upload stores the content and records its metadata. The blob is removed
// again if the metadata cannot be written.
func (s *FileService) Upload(ctx context.Context, u Upload) (*models.File, error) {
	name := filepath.Base(strings.TrimSpace(u.Name))
	switch {
	case u.ChannelID == "":
		return nil, fmt.Errorf("%w: channel_id is required", common.ErrInvalidRequest)
	case name == "" || name == "." || name == string(filepath.Separator):
		return nil, fmt.Errorf("%w: file name is required", common.ErrInvalidRequest)
	case s.maxSize > 0 && u.Size > s.maxSize:
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", common.ErrFileTooLarge, name, u.Size, s.maxSize)
	}

	mime, err := mimetype.DetectReader(u.Body)
	if err != nil {
		return nil, fmt.Errorf("detect mime type: %w", err)
	}
	if _, err := u.Body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	created := now().UTC()
	f := &models.File{
		ID:         newID(),
		UserID:     u.UserID,
		ChannelID:  u.ChannelID,
		Name:       name,
		MimeType:   mime.String(),
		Size:       u.Size,
		StorageKey: blobstore.NewStorageKey(created),
		CreatedAt:  created,
	}

	if err := s.blobs.Put(ctx, f.StorageKey, u.Body, u.Size, f.MimeType); err != nil {
		return nil, err
	}
	if err := s.repos.Files().Create(ctx, f); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), f.StorageKey); delErr != nil {
			s.logger.Warn(ctx, "failed to remove blob after metadata error", "key", f.StorageKey, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info(ctx, "file uploaded", "file", f.ID, "user", f.UserID, "channel", f.ChannelID, "size", f.Size)
	return f, nil
}

// Open returns the file and its content if userID may read it.
func (s *FileService) Open(ctx context.Context, userID, id string) (*models.File, io.ReadCloser, error) {
	f, err := s.repos.Files().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if f == nil {
		return nil, nil, fmt.Errorf("file %s: %w", id, common.ErrorNotFound)
	}
	if f.UserID != userID {
		return nil, nil, fmt.Errorf("file %s: %w", id, common.ErrForbidden)
	}

	body, err := s.blobs.Get(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "file metadata without blob", "file", id, "key", f.StorageKey)
		}
		return nil, nil, err
	}
	return f, body, nil
}
