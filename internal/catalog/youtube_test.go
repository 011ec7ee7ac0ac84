package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/tubebot/internal/retry"
)

const searchBody = `{
  "items": [
    {"id": {"kind": "youtube#video", "videoId": "abc"},
     "snippet": {"title": "Lofi 1", "description": "first",
                 "thumbnails": {"default": {"url": "http://img/abc.jpg"}}}},
    {"id": {"kind": "youtube#channel", "channelId": "chan"},
     "snippet": {"title": "A channel"}},
    {"id": {"kind": "youtube#video", "videoId": "def"},
     "snippet": {"title": "Lofi 2", "description": "second"}}
  ]
}`

const trendingBody = `{
  "items": [
    {"id": "t1", "snippet": {"title": "Hot", "description": "d",
                             "thumbnails": {"high": {"url": "http://img/t1.jpg"}}}}
  ]
}`

func newTestYouTube(t *testing.T, handler http.HandlerFunc) *YouTube {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fast := retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
	y, err := NewYouTube(context.Background(), YouTubeOptions{
		APIKey:   "test-key",
		Endpoint: srv.URL + "/",
		Timeout:  2 * time.Second,
		Retry:    &fast,
	})
	require.NoError(t, err)
	return y
}

func TestYouTube_Search(t *testing.T) {
	y := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/search"), r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "lofi", q.Get("q"))
		assert.Equal(t, "video", q.Get("type"))
		assert.Equal(t, "5", q.Get("maxResults"))
		assert.Equal(t, "test-key", q.Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	})

	got, err := y.Search(context.Background(), "lofi", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, VideoSummary{ID: "abc", Title: "Lofi 1", Description: "first", ThumbnailURL: "http://img/abc.jpg"}, got[0])
	assert.Equal(t, "def", got[1].ID)
	assert.Empty(t, got[1].ThumbnailURL)
}

func TestYouTube_SearchTruncatesToLimit(t *testing.T) {
	y := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	})
	got, err := y.Search(context.Background(), "lofi", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestYouTube_Trending(t *testing.T) {
	y := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/videos"), r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "mostPopular", q.Get("chart"))
		assert.Equal(t, "US", q.Get("regionCode"))
		_, _ = w.Write([]byte(trendingBody))
	})

	got, err := y.Trending(context.Background(), "", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "http://img/t1.jpg", got[0].ThumbnailURL)
	assert.Equal(t, "https://www.youtube.com/watch?v=t1", got[0].WatchURL())
}

func TestYouTube_TrendingEmpty(t *testing.T) {
	y := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": []}`))
	})
	got, err := y.Trending(context.Background(), "US", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestYouTube_QuotaExceeded(t *testing.T) {
	var calls atomic.Int32
	y := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "quota", "errors": [{"reason": "quotaExceeded", "message": "quota"}]}}`))
	})

	_, err := y.Search(context.Background(), "lofi", 5)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int32(1), calls.Load(), "quota errors are not retried")
}

func TestYouTube_TooManyRequests(t *testing.T) {
	y := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "slow down"}}`))
	})
	_, err := y.Trending(context.Background(), "US", 5)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestYouTube_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	y := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"code": 500, "message": "boom"}}`))
			return
		}
		_, _ = w.Write([]byte(trendingBody))
	})

	got, err := y.Trending(context.Background(), "US", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewYouTube_RequiresKey(t *testing.T) {
	_, err := NewYouTube(context.Background(), YouTubeOptions{})
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, int64(5), clampLimit(0))
	assert.Equal(t, int64(3), clampLimit(3))
	assert.Equal(t, int64(50), clampLimit(500))
}
