package upload

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboul/storefront/internal/domain/product"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func newTestStore(t *testing.T, maxSize int) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "uploads"), "http://localhost:8080/uploads/", maxSize)
	require.NoError(t, err)
	return s
}

func TestUploadAndRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	url, err := s.Upload(ctx, dataURI("image/png", pngHeader))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/uploads/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"))

	name := filepath.Base(url)
	data, err := os.ReadFile(filepath.Join(s.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, s.Remove(ctx, url))
	_, err = os.Stat(filepath.Join(s.Dir(), name))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.ErrorIs(t, s.Remove(ctx, url), ErrNotFound)
}

func TestSave_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr error
	}{
		{name: "not a data uri", uri: "https://example.com/a.png", wantErr: ErrInvalidImage},
		{name: "missing payload", uri: "data:image/png;base64", wantErr: ErrInvalidImage},
		{name: "not base64", uri: "data:image/png,rawbytes", wantErr: ErrInvalidImage},
		{name: "unsupported type", uri: dataURI("application/pdf", []byte("%PDF")), wantErr: ErrInvalidImage},
		{name: "corrupt payload", uri: "data:image/png;base64,!!!", wantErr: ErrInvalidImage},
		{name: "too large", uri: dataURI("image/jpeg", make([]byte, 64)), wantErr: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, 32)
			_, err := s.Save(context.Background(), tt.uri)
			require.ErrorIs(t, err, tt.wantErr)

			entries, err := os.ReadDir(s.Dir())
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestDelete_RejectsTraversal(t *testing.T) {
	s := newTestStore(t, 0)
	outside := filepath.Join(filepath.Dir(s.Dir()), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	for _, name := range []string{"", "..", "../secret.txt", `..\secret.txt`} {
		require.ErrorIs(t, s.Delete(context.Background(), name), ErrNotFound, name)
	}
	_, err := os.Stat(outside)
	require.NoError(t, err)
}

func TestUpload_ReportsValidation(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Upload(context.Background(), "data:text/plain;base64,aGk=")
	require.True(t, product.IsValidation(err), "got %v", err)
}

func TestHandler_ServesFilesWithoutListing(t *testing.T) {
	s := newTestStore(t, 0)
	url, err := s.Upload(context.Background(), dataURI("image/png", pngHeader))
	require.NoError(t, err)
	name := filepath.Base(url)
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "nested"), 0o755))

	h := s.Handler()
	tests := []struct {
		path   string
		status int
	}{
		{"/" + name, http.StatusOK},
		{"/", http.StatusNotFound},
		{"/nested/", http.StatusNotFound},
		{"/missing.png", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), name+"\"")
		})
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+name, nil))
	assert.Equal(t, pngHeader, w.Body.Bytes())
}
