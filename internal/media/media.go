// Package media resolves YouTube videos to stream URLs and downloaded files.
package media

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrYtdlpNotInstalled = errors.New("yt-dlp is not installed")
	ErrVideoUnavailable  = errors.New("video unavailable")
	ErrFormatUnavailable = errors.New("requested format is not available")
	ErrRateLimited       = errors.New("rate limited by upstream")
	ErrTimeout           = errors.New("media operation timed out")
	ErrNoOutput          = errors.New("yt-dlp produced no output")
)

// Provider turns video ids into playable URLs and local files.
type Provider interface {
	// ResolveStreamURL returns a direct URL for the best combined format.
	ResolveStreamURL(ctx context.Context, videoID string) (string, error)
	// Download fetches the best video+audio at or below maxHeight and returns
	// the local path. On error no file is left behind.
	Download(ctx context.Context, videoID string, maxHeight int) (string, error)
}

// Error describes a failed media operation.
type Error struct {
	Op      string // "resolve" or "download"
	VideoID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("media %s %s: %v", e.Op, e.VideoID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
