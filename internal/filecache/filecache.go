// Package filecache downloads avatar images into the uploads directory.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrNoURL     = errors.New("filecache: avatar url is empty")
	ErrEmptyBody = errors.New("filecache: downloaded image is empty")
)

// Cache writes one file per user: {dir}/{userID}-image.jpg.
type Cache struct {
	dir    string
	client *http.Client
}

func New(dir string, timeout time.Duration) *Cache {
	return &Cache{
		dir: dir,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Path returns where the avatar of userID is stored.
func (c *Cache) Path(userID string) string {
	return filepath.Join(c.dir, userID+"-image.jpg")
}

// Download fetches url, stores it at Path(userID) and returns the bytes.
// The directory is created on first use.
func (c *Cache) Download(ctx context.Context, url, userID string) ([]byte, error) {
	if url == "" {
		return nil, ErrNoURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("filecache: building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filecache: downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("filecache: downloading %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("filecache: reading %s: %w", url, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("filecache: creating %s: %w", c.dir, err)
	}
	if err := os.WriteFile(c.Path(userID), data, 0o644); err != nil {
		return nil, fmt.Errorf("filecache: writing image: %w", err)
	}

	return data, nil
}

// Remove deletes the stored file. A missing file is an error.
func (c *Cache) Remove(userID string) error {
	if err := os.Remove(c.Path(userID)); err != nil {
		return fmt.Errorf("filecache: removing image: %w", err)
	}
	return nil
}
