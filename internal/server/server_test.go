package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/user-avatar-service/internal/auth"
	"github.com/sakif/user-avatar-service/internal/config"
)

const testImage = "\xff\xd8\xff\xe0fake-jpeg"

// fakeDirectory mimics the external user directory and its image host.
type fakeDirectory struct {
	srv       *httptest.Server
	downloads atomic.Int32
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	t.Helper()
	d := &fakeDirectory{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"success":true,"id":"12345"}`)
	})
	mux.HandleFunc("GET /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch id := r.PathValue("id"); id {
		case "2":
			io.WriteString(w, `{"data":{"id":2,"email":"janet.weaver@reqres.in","first_name":"Janet","last_name":"Weaver","avatar":"`+d.srv.URL+`/img/2-image.jpg"}}`)
		case "23":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{}`)
		default:
			io.WriteString(w, `{}`)
		}
	})
	mux.HandleFunc("GET /img/2-image.jpg", func(w http.ResponseWriter, r *http.Request) {
		d.downloads.Add(1)
		io.WriteString(w, testImage)
	})

	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *fakeDirectory, config.Config) {
	t.Helper()
	dir := newFakeDirectory(t)

	cfg := config.Config{
		Port:            0,
		DBURI:           "sqlite://:memory:",
		UpstreamBaseURL: dir.srv.URL + "/api/",
		UpstreamTimeout: 2 * time.Second,
		EventQueue:      "user queue",
		HashSecret:      "test-hash-secret",
		UploadsDir:      filepath.Join(t.TempDir(), "uploads"),
		WorkerCount:     1,
		LogFormat:       "text",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close(context.Background()) })
	return srv, dir, cfg
}

func call(t *testing.T, h http.Handler, method, path, body string, header http.Header) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return rr.Code, out
}

func TestEndToEnd_UserAndAvatarLifecycle(t *testing.T) {
	srv, dir, cfg := newTestServer(t, nil)
	h := srv.Handler()

	// create
	status, body := call(t, h, http.MethodPost, "/api/users", `{"userId":"12345","email":"test@example.com"}`, nil)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User created successfully", body["message"])
	assert.Equal(t, map[string]any{"success": true, "id": "12345"}, body["data"])

	// invalid create never reaches the directory
	status, body = call(t, h, http.MethodPost, "/api/users", `{"first_name":"Janet"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email is required", body["message"])

	// get user
	status, body = call(t, h, http.MethodGet, "/api/user/2", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "User retrieved successfully", body["message"])

	status, body = call(t, h, http.MethodGet, "/api/user/999", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"message": "User Not Found"}, body)

	status, body = call(t, h, http.MethodGet, "/api/user/23", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Request failed with status code 404", body["message"])

	// avatar: miss, then hit
	want := base64.StdEncoding.EncodeToString([]byte(testImage))
	for i := 0; i < 2; i++ {
		status, body = call(t, h, http.MethodGet, "/api/user/2/avatar", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Image retrieved successfully", body["message"])
		assert.Equal(t, want, body["avatar"])
	}
	assert.Equal(t, int32(1), dir.downloads.Load(), "second request is served from the store")

	onDisk, err := os.ReadFile(filepath.Join(cfg.UploadsDir, "2-image.jpg"))
	require.NoError(t, err)
	assert.Equal(t, testImage, string(onDisk))

	status, body = call(t, h, http.MethodGet, "/api/user/2/avatar?format=dataurl", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "data:image/jpeg;base64,"+want, body["avatar"])

	// avatar of a user the directory does not know
	status, body = call(t, h, http.MethodGet, "/api/user/999/avatar", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Unable to retrieve avatar for given user Id", body["message"])

	// remove, then remove again
	status, body = call(t, h, http.MethodDelete, "/api/user/2/avatar", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "User avatar removed successfully", body["message"])
	_, err = os.Stat(filepath.Join(cfg.UploadsDir, "2-image.jpg"))
	assert.True(t, os.IsNotExist(err))

	status, body = call(t, h, http.MethodDelete, "/api/user/2/avatar", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Unable to delete the user avatar", body["message"])
}

func TestEndToEnd_RemoveWithMissingFileIsInternalError(t *testing.T) {
	srv, _, cfg := newTestServer(t, nil)
	h := srv.Handler()

	status, _ := call(t, h, http.MethodGet, "/api/user/2/avatar", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, os.Remove(filepath.Join(cfg.UploadsDir, "2-image.jpg")))

	status, body := call(t, h, http.MethodDelete, "/api/user/2/avatar", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body["message"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	h := srv.Handler()

	status, body := call(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"status": "ok"}, body)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_request_duration_seconds")
}

func TestBearerAuth(t *testing.T) {
	const secret = "integration-secret-0123456789"
	srv, _, _ := newTestServer(t, func(c *config.Config) { c.AuthJWTSecret = secret })
	h := srv.Handler()

	status, body := call(t, h, http.MethodGet, "/api/user/2", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", body["message"])

	tokens, err := auth.NewTokenService(secret)
	require.NoError(t, err)
	token, err := tokens.Generate("test-client", time.Minute)
	require.NoError(t, err)

	status, _ = call(t, h, http.MethodGet, "/api/user/2", "", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status, "health stays public")
}
