// Package thumbnail downloads preview images to temporary files.
//
// Fetch either returns the path of a complete image file or an error; the
// caller treats any error as "no thumbnail" and sends its reply without one.
// The caller owns the returned file and must remove it.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dayuer/tubebot/internal/utils"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxBytes = 5 << 20
	userAgent       = "Mozilla/5.0 (compatible; tubebot/1.0)"
)

var (
	// ErrNoURL is returned for an empty URL.
	ErrNoURL = errors.New("no thumbnail url")
	// ErrUnavailable is returned when the server does not serve the image.
	ErrUnavailable = errors.New("thumbnail unavailable")
	// ErrTooLarge is returned when the image exceeds the size cap.
	ErrTooLarge = errors.New("thumbnail too large")
)

// Fetcher fetches thumbnails over HTTP.
type Fetcher struct {
	Client   *http.Client
	Dir      string // temp directory; os.TempDir() when empty
	MaxBytes int64
}

// NewFetcher returns a Fetcher with a 10s timeout writing into dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		Client:   &http.Client{Timeout: defaultTimeout},
		Dir:      dir,
		MaxBytes: defaultMaxBytes,
	}
}

// Fetch downloads url into a new temporary .jpg file and returns its path.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", ErrNoURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build thumbnail request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	tmp, err := os.CreateTemp(f.Dir, "thumb-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create thumbnail file: %w", err)
	}
	path := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		_ = utils.RemoveFile(path)
		return "", fmt.Errorf("write thumbnail: %w", err)
	case n > maxBytes:
		_ = utils.RemoveFile(path)
		return "", ErrTooLarge
	case n == 0:
		_ = utils.RemoveFile(path)
		return "", fmt.Errorf("%w: empty body", ErrUnavailable)
	}
	return path, nil
}
