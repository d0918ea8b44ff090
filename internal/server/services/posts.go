package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/dmitrijs2005/gophshare/internal/server/models"
	"github.com/dmitrijs2005/gophshare/internal/server/repositories/repomanager"
)

// maxPostFiles mirrors the attachment limit of the upstream API.
const maxPostFiles = 10

// CreatePost is a post-creation request from an authenticated user.
type CreatePost struct {
	UserID    string
	ChannelID string
	RootID    string
	Message   string
	FileIDs   []string
}

type PostService struct {
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

func NewPostService(repos repomanager.RepositoryManager, l logging.Logger) *PostService {
	return &PostService{repos: repos, logger: l.With("module", "posts")}
}

// Create validates the referenced files and stores the post with its
// attachments in one transaction.
func (s *PostService) Create(ctx context.Context, authUserID string, in CreatePost) (*models.Post, error) {
	if in.UserID != "" && in.UserID != authUserID {
		return nil, fmt.Errorf("%w: cannot post as another user", common.ErrForbidden)
	}
	if in.ChannelID == "" {
		return nil, fmt.Errorf("%w: channel_id is required", common.ErrInvalidRequest)
	}
	if strings.TrimSpace(in.Message) == "" && len(in.FileIDs) == 0 {
		return nil, fmt.Errorf("%w: message or files required", common.ErrInvalidRequest)
	}
	if len(in.FileIDs) > maxPostFiles {
		return nil, fmt.Errorf("%w: at most %d files per post", common.ErrInvalidRequest, maxPostFiles)
	}

	p := &models.Post{
		ID:        newID(),
		UserID:    authUserID,
		ChannelID: in.ChannelID,
		RootID:    in.RootID,
		Message:   in.Message,
		FileIDs:   in.FileIDs,
		CreatedAt: now().UTC(),
	}

	err := s.repos.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		if in.RootID != "" {
			root, err := r.Posts.Get(ctx, in.RootID)
			if err != nil {
				return err
			}
			if root == nil || root.ChannelID != in.ChannelID {
				return fmt.Errorf("%w: unknown root post %s", common.ErrInvalidRequest, in.RootID)
			}
		}

		seen := make(map[string]bool, len(in.FileIDs))
		for _, id := range in.FileIDs {
			if seen[id] {
				return fmt.Errorf("%w: file %s listed twice", common.ErrInvalidRequest, id)
			}
			seen[id] = true

			f, err := r.Files.Get(ctx, id)
			if err != nil {
				return err
			}
			if f == nil || f.UserID != authUserID || f.ChannelID != in.ChannelID {
				return fmt.Errorf("%w: file %s cannot be attached", common.ErrInvalidRequest, id)
			}
		}

		attached, err := r.Files.Attached(ctx, in.FileIDs)
		if err != nil {
			return err
		}
		for _, id := range in.FileIDs {
			if attached[id] {
				return fmt.Errorf("%w: file %s already attached to a post", common.ErrInvalidRequest, id)
			}
		}

		return r.Posts.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "post created", "post", p.ID, "user", p.UserID, "channel", p.ChannelID, "files", len(p.FileIDs))
	return p, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	p, err := s.repos.Posts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("post %s: %w", id, common.ErrorNotFound)
	}
	return p, nil
}
