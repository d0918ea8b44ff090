// Package transfertest provides an in-process fake of the remote upload API
// for tests.
package transfertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophshare/internal/netx"
)

// Upload is one received file.
type Upload struct {
	ID        string
	Filename  string
	ChannelID string
	Content   []byte
	Token     string
}

// Post is one received post-creation call.
type Post struct {
	ID        string
	UserID    string   `json:"user_id"`
	ChannelID string   `json:"channel_id"`
	Message   string   `json:"message"`
	RootID    string   `json:"root_id"`
	FileIDs   []string `json:"file_ids"`
	Token     string   `json:"-"`
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	uploads  []Upload
	posts    []Post
	statuses map[string]int
	holds    map[string]chan struct{}
	raw      map[string]string
	postCode int
	nextID   int
}

// New starts a plain HTTP fake closed on test cleanup.
func New(t testing.TB) *Server {
	s := newServer()
	s.Server = httptest.NewServer(s.handler())
	t.Cleanup(s.Close)
	return s
}

// NewUnstarted lets the caller configure TLS before starting.
func NewUnstarted() *Server {
	s := newServer()
	s.Server = httptest.NewUnstartedServer(s.handler())
	return s
}

func newServer() *Server {
	return &Server{
		statuses: make(map[string]int),
		holds:    make(map[string]chan struct{}),
		raw:      make(map[string]string),
	}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v4/files", s.handleUpload)
	mux.HandleFunc("POST /api/v4/posts", s.handlePost)
	return mux
}

// FailFile makes the upload of filename answer with status.
func (s *Server) FailFile(filename string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[filename] = status
}

// RawFileResponse makes the upload of filename answer 201 with body.
func (s *Server) RawFileResponse(filename, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[filename] = body
}

// FailPosts makes post creation answer with status.
func (s *Server) FailPosts(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postCode = status
}

// Hold blocks the upload of filename until release is called.
func (s *Server) Hold(filename string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[filename] = ch
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

// Close releases every held upload and shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	for name, ch := range s.holds {
		select {
		case <-ch:
		default:
			close(ch)
		}
		delete(s.holds, name)
	}
	s.mu.Unlock()
	s.Server.Close()
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Post(nil), s.posts...)
}

func (s *Server) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s%d", prefix, s.nextID)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	token, _ := netx.BearerToken(r.Header.Get("Authorization"))

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("files")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	s.mu.Lock()
	hold := s.holds[header.Filename]
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	status := s.statuses[header.Filename]
	raw, hasRaw := s.raw[header.Filename]
	var id string
	if status == 0 && !hasRaw {
		id = s.id("file")
		s.uploads = append(s.uploads, Upload{
			ID:        id,
			Filename:  header.Filename,
			ChannelID: r.FormValue("channel_id"),
			Content:   content,
			Token:     token,
		})
	}
	s.mu.Unlock()

	switch {
	case status != 0:
		http.Error(w, "upload rejected", status)
	case hasRaw:
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, raw)
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"file_infos": []map[string]string{{"id": id, "name": header.Filename}},
		})
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var p Post
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.Token, _ = netx.BearerToken(r.Header.Get("Authorization"))

	s.mu.Lock()
	code := s.postCode
	if code == 0 {
		p.ID = s.id("post")
		s.posts = append(s.posts, p)
	}
	s.mu.Unlock()

	if code != 0 {
		http.Error(w, "post rejected", code)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": p.ID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
