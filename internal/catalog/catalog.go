// Package catalog looks up YouTube videos by free-text query or by the
// "most popular" chart.
package catalog

import (
	"context"
	"errors"
)

// DefaultRegion is the region used for the trending chart.
const DefaultRegion = "US"

var (
	// ErrQuotaExceeded is returned when the API rejects a call for quota or
	// rate reasons.
	ErrQuotaExceeded = errors.New("catalog quota exceeded")
	// ErrNotFound is returned when the API reports the resource is missing.
	ErrNotFound = errors.New("catalog resource not found")
)

// VideoSummary describes one catalog entry.
type VideoSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// WatchURL returns the public watch page of the video.
func (v VideoSummary) WatchURL() string {
	return WatchURL(v.ID)
}

// WatchURL returns the public watch page for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// Provider returns ordered lists of videos.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]VideoSummary, error)
	Trending(ctx context.Context, region string, limit int) ([]VideoSummary, error)
}
