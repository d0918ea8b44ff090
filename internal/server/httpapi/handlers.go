package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/server/models"
	"github.com/dmitrijs2005/gophshare/internal/server/services"
)

const (
	filesField     = "files"
	channelIDField = "channel_id"
)

type fileInfo struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
	CreateAt  int64  `json:"create_at"`
}

func newFileInfo(f *models.File) fileInfo {
	return fileInfo{
		ID:        f.ID,
		UserID:    f.UserID,
		ChannelID: f.ChannelID,
		Name:      f.Name,
		Extension: strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), "."),
		Size:      f.Size,
		MimeType:  f.MimeType,
		CreateAt:  f.CreatedAt.UnixMilli(),
	}
}

type uploadResponse struct {
	FileInfos []fileInfo `json:"file_infos"`
}

type createPostRequest struct {
	UserID    string   `json:"user_id"`
	ChannelID string   `json:"channel_id"`
	RootID    string   `json:"root_id"`
	Message   string   `json:"message"`
	FileIDs   []string `json:"file_ids"`
}

type postResponse struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	ChannelID string   `json:"channel_id"`
	RootID    string   `json:"root_id"`
	Message   string   `json:"message"`
	FileIDs   []string `json:"file_ids"`
	CreateAt  int64    `json:"create_at"`
}

func newPostResponse(p *models.Post) postResponse {
	ids := p.FileIDs
	if ids == nil {
		ids = []string{}
	}
	return postResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		ChannelID: p.ChannelID,
		RootID:    p.RootID,
		Message:   p.Message,
		FileIDs:   ids,
		CreateAt:  p.CreatedAt.UnixMilli(),
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	if s.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(w, r, fmt.Errorf("%w: request exceeds %d bytes", common.ErrFileTooLarge, tooBig.Limit))
			return
		}
		s.fail(w, r, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[filesField]
	if len(headers) == 0 {
		s.fail(w, r, fmt.Errorf("%w: no %q parts", common.ErrInvalidRequest, filesField))
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	channelID := r.FormValue(channelIDField)

	infos := make([]fileInfo, 0, len(headers))
	for _, fh := range headers {
		body, err := fh.Open()
		if err != nil {
			s.fail(w, r, fmt.Errorf("open part %s: %w", fh.Filename, err))
			return
		}
		f, err := s.files.Upload(r.Context(), services.Upload{
			UserID:    userID,
			ChannelID: channelID,
			Name:      fh.Filename,
			Size:      fh.Size,
			Body:      body,
		})
		body.Close()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		infos = append(infos, newFileInfo(f))
	}

	writeJSON(w, http.StatusCreated, uploadResponse{FileInfos: infos})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	f, body, err := s.files.Open(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn(r.Context(), "file download interrupted", "file", f.ID, "error", err)
	}
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err))
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	p, err := s.posts.Create(r.Context(), userID, services.CreatePost{
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		RootID:    req.RootID,
		Message:   req.Message,
		FileIDs:   req.FileIDs,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newPostResponse(p))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.posts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPostResponse(p))
}
