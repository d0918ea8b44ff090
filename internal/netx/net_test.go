package netx

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResponse(t *testing.T) {
	t.Run("2xx passes", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(""))}
		require.NoError(t, CheckResponse(resp))
	})

	t.Run("non-2xx keeps body snippet", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusForbidden)
		}))
		defer ts.Close()

		resp, err := http.Get(ts.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		err = CheckResponse(resp)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusForbidden, se.StatusCode)
		assert.Equal(t, "quota exceeded", se.Body)
		assert.Contains(t, err.Error(), "403")
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"BEARER abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"BEARER", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	h := http.Header{}
	SetBearer(h, "tok")
	assert.Equal(t, "BEARER tok", h.Get("Authorization"))
}

func TestMultipartFile_ParsesOnServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("file-content"), 0o600))

	var gotName, gotContent, gotChannel, gotCT string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fh := r.MultipartForm.File["files"][0]
		gotName = fh.Filename
		gotCT = fh.Header.Get("Content-Type")
		f, err := fh.Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		gotContent = string(b)
		gotChannel = r.FormValue("channel_id")
	}))
	defer ts.Close()

	body, ct := MultipartFile("files", "a.txt", "text/plain", path, map[string]string{"channel_id": "ch1"})
	resp, err := http.Post(ts.URL, ct, body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "a.txt", gotName)
	assert.Equal(t, "text/plain", gotCT)
	assert.Equal(t, "file-content", gotContent)
	assert.Equal(t, "ch1", gotChannel)
}

func TestMultipartFile_MissingFileFailsRead(t *testing.T) {
	body, _ := MultipartFile("files", "x", "", filepath.Join(t.TempDir(), "nope"), nil)
	_, err := io.ReadAll(body)
	require.Error(t, err)
}
