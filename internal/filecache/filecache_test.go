package filecache

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImageServer(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/img/2-image.jpg"
}

func TestDownload_WritesFileAndCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads", "nested")
	c := New(dir, time.Second)
	url := newImageServer(t, http.StatusOK, "jpeg-bytes")

	data, err := c.Download(context.Background(), url, "2")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	onDisk, err := os.ReadFile(filepath.Join(dir, "2-image.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(onDisk))
}

func TestDownload_Failures(t *testing.T) {
	tests := []struct {
		name    string
		url     func(t *testing.T) string
		wantErr error
	}{
		{name: "empty url", url: func(*testing.T) string { return "" }, wantErr: ErrNoURL},
		{name: "empty body", url: func(t *testing.T) string { return newImageServer(t, http.StatusOK, "") }, wantErr: ErrEmptyBody},
		{name: "404", url: func(t *testing.T) string { return newImageServer(t, http.StatusNotFound, "nope") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			c := New(dir, time.Second)

			_, err := c.Download(context.Background(), tt.url(t), "2")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}

			_, statErr := os.Stat(c.Path("2"))
			assert.True(t, errors.Is(statErr, fs.ErrNotExist), "no file on failure")
		})
	}
}

func TestRemove(t *testing.T) {
	c := New(t.TempDir(), time.Second)
	require.NoError(t, os.WriteFile(c.Path("7"), []byte("x"), 0o644))

	require.NoError(t, c.Remove("7"))

	err := c.Remove("7")
	require.Error(t, err, "removing a missing file fails")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
