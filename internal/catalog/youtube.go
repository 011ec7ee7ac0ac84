package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/dayuer/tubebot/internal/logging"
	"github.com/dayuer/tubebot/internal/retry"
)

const (
	defaultTimeout = 15 * time.Second
	maxResults     = 50
)

var snippetParts = []string{"id", "snippet"}

// YouTubeOptions configures the Data API client.
type YouTubeOptions struct {
	APIKey string
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// Timeout bounds each API call. Defaults to 15s.
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
	Retry             *retry.Config
	Logger            *zap.Logger
}

// YouTube implements Provider on top of the YouTube Data API v3.
type YouTube struct {
	svc     *youtube.Service
	limiter *rate.Limiter
	timeout time.Duration
	retry   retry.Config
	logger  *zap.Logger
}

// NewYouTube creates a Data API client authenticated with an API key.
func NewYouTube(ctx context.Context, opts YouTubeOptions) (*YouTube, error) {
	if opts.APIKey == "" {
		return nil, errors.New("youtube api key not configured")
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	y := &YouTube{
		svc:     svc,
		timeout: opts.Timeout,
		retry:   retry.DefaultConfig(),
		logger:  logging.OrNop(opts.Logger),
	}
	if y.timeout <= 0 {
		y.timeout = defaultTimeout
	}
	if opts.Retry != nil {
		y.retry = *opts.Retry
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		y.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return y, nil
}

// Search returns up to limit videos matching query.
func (y *YouTube) Search(ctx context.Context, query string, limit int) ([]VideoSummary, error) {
	var out []VideoSummary
	err := y.call(ctx, "search", func(ctx context.Context) error {
		resp, err := y.svc.Search.List(snippetParts).
			Q(query).
			Type("video").
			MaxResults(clampLimit(limit)).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		out = make([]VideoSummary, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item == nil || item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
				continue
			}
			out = append(out, VideoSummary{
				ID:           item.Id.VideoId,
				Title:        item.Snippet.Title,
				Description:  item.Snippet.Description,
				ThumbnailURL: thumbnailURL(item.Snippet.Thumbnails),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return truncate(out, limit), nil
}

// Trending returns up to limit videos from the region's most popular chart.
func (y *YouTube) Trending(ctx context.Context, region string, limit int) ([]VideoSummary, error) {
	if region == "" {
		region = DefaultRegion
	}
	var out []VideoSummary
	err := y.call(ctx, "trending", func(ctx context.Context) error {
		resp, err := y.svc.Videos.List(snippetParts).
			Chart("mostPopular").
			RegionCode(region).
			MaxResults(clampLimit(limit)).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		out = make([]VideoSummary, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item == nil || item.Id == "" || item.Snippet == nil {
				continue
			}
			out = append(out, VideoSummary{
				ID:           item.Id,
				Title:        item.Snippet.Title,
				Description:  item.Snippet.Description,
				ThumbnailURL: thumbnailURL(item.Snippet.Thumbnails),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return truncate(out, limit), nil
}

// call throttles, time-boxes and retries one API operation and maps API
// errors to the package sentinels.
func (y *YouTube) call(ctx context.Context, op string, fn func(context.Context) error) error {
	err := retry.Do(ctx, y.retry, isRetryable, func(ctx context.Context) error {
		if y.limiter != nil {
			if err := y.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, y.timeout)
		defer cancel()
		return classify(fn(callCtx))
	})
	if err != nil {
		y.logger.Warn("youtube api call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("youtube %s: %w", op, err)
	}
	return nil
}

// classify maps Data API errors to the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, gerr.Message)
	case gerr.Code == http.StatusForbidden && hasReason(gerr, "quotaExceeded", "rateLimitExceeded", "dailyLimitExceeded", "userRateLimitExceeded"):
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, gerr.Message)
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
	}
	return err
}

func hasReason(gerr *googleapi.Error, reasons ...string) bool {
	for _, item := range gerr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}

// isRetryable retries server-side failures and transport errors only.
func isRetryable(err error) bool {
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNotFound) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= 500
	}
	return retry.IsRetryable(err)
}

// thumbnailURL picks the smallest available preview, matching what the chat
// client renders.
func thumbnailURL(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Default, t.Medium, t.High, t.Standard, t.Maxres} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func clampLimit(limit int) int64 {
	switch {
	case limit <= 0:
		return 5
	case limit > maxResults:
		return maxResults
	}
	return int64(limit)
}

func truncate(items []VideoSummary, limit int) []VideoSummary {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
