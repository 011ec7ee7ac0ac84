// Package download runs one video download end to end: fetch, size policy,
// delivery and cleanup of the local artifact.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dayuer/tubebot/internal/action"
	"github.com/dayuer/tubebot/internal/logging"
	"github.com/dayuer/tubebot/internal/media"
	"github.com/dayuer/tubebot/internal/metrics"
	"github.com/dayuer/tubebot/internal/utils"
)

const (
	bytesPerMB = 1024 * 1024

	DefaultLimitMB     = 50
	DefaultConcurrency = 2
	DefaultTimeout     = 10 * time.Minute
)

var ErrInvalidQuality = errors.New("invalid quality")

// Request asks for one video at a quality label such as "720p".
type Request struct {
	VideoID string
	Quality string
}

// Artifact is a downloaded file handed to the delivery callback. The file is
// removed once the callback returns.
type Artifact struct {
	Path      string
	SizeBytes int64
	VideoID   string
	Quality   string
}

// DeliverFunc sends an artifact to the user.
type DeliverFunc func(ctx context.Context, a Artifact) error

// Outcome classifies a Result.
type Outcome int

const (
	Failed Outcome = iota
	Delivered
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	default:
		return "failed"
	}
}

// Rejection is the size policy decision for an oversized file.
type Rejection struct {
	ObservedMB float64
	LimitMB    float64
}

func (r *Rejection) Error() string {
	return r.Reason()
}

// Reason is the user-facing explanation.
func (r *Rejection) Reason() string {
	return fmt.Sprintf("Sorry, the file size (%.2fMB) exceeds Telegram's limit (%sMB). Please try a lower quality.",
		r.ObservedMB, formatLimit(r.LimitMB))
}

// Result is exactly one of Delivered, Rejected or Failed.
type Result struct {
	Outcome   Outcome
	Path      string
	SizeBytes int64
	Rejection *Rejection
	Err       error
}

// Options configures a Coordinator.
type Options struct {
	LimitMB     float64
	Concurrency int64
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Coordinator bounds concurrent downloads and enforces the size limit.
type Coordinator struct {
	media   media.Provider
	sem     *semaphore.Weighted
	limitMB float64
	timeout time.Duration
	logger  *zap.Logger
}

// NewCoordinator creates a coordinator over provider. Zero options take defaults.
func NewCoordinator(provider media.Provider, opts Options) *Coordinator {
	if opts.LimitMB <= 0 {
		opts.LimitMB = DefaultLimitMB
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Coordinator{
		media:   provider,
		sem:     semaphore.NewWeighted(opts.Concurrency),
		limitMB: opts.LimitMB,
		timeout: opts.Timeout,
		logger:  logging.OrNop(opts.Logger),
	}
}

// LimitMB returns the configured size cap.
func (c *Coordinator) LimitMB() float64 {
	return c.limitMB
}

// Download fetches req, applies the size policy and calls deliver for files
// within the limit. Whatever file the provider returned is gone when
// Download returns.
func (c *Coordinator) Download(ctx context.Context, req Request, deliver DeliverFunc) Result {
	res := c.download(ctx, req, deliver)
	metrics.IncDownload(req.Quality, res.Outcome.String())

	fields := []zap.Field{
		zap.String("video_id", req.VideoID),
		zap.String("quality", req.Quality),
		zap.Stringer("outcome", res.Outcome),
	}
	switch res.Outcome {
	case Failed:
		c.logger.Warn("download failed", append(fields, zap.Error(res.Err))...)
	case Rejected:
		c.logger.Info("download rejected", append(fields, zap.Float64("size_mb", res.Rejection.ObservedMB))...)
	default:
		c.logger.Info("download delivered", append(fields, zap.Int64("size_bytes", res.SizeBytes))...)
	}
	return res
}

func (c *Coordinator) download(ctx context.Context, req Request, deliver DeliverFunc) Result {
	height, err := action.ParseQuality(req.Quality)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("%w: %q", ErrInvalidQuality, req.Quality)}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	defer c.sem.Release(1)
	metrics.DownloadsInFlight.Inc()
	defer metrics.DownloadsInFlight.Dec()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path, err := c.media.Download(ctx, req.VideoID, height)
	if path != "" {
		defer func() {
			if rmErr := utils.RemoveFile(path); rmErr != nil {
				c.logger.Warn("remove artifact", zap.String("path", path), zap.Error(rmErr))
			}
		}()
	}
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("stat artifact: %w", err)}
	}
	size := info.Size()
	metrics.DownloadBytes.Observe(float64(size))

	observed := float64(size) / bytesPerMB
	if observed > c.limitMB {
		return Result{
			Outcome:   Rejected,
			SizeBytes: size,
			Rejection: &Rejection{ObservedMB: observed, LimitMB: c.limitMB},
		}
	}

	art := Artifact{Path: path, SizeBytes: size, VideoID: req.VideoID, Quality: req.Quality}
	if err := deliver(ctx, art); err != nil {
		return Result{Outcome: Failed, Path: path, SizeBytes: size, Err: fmt.Errorf("deliver: %w", err)}
	}
	return Result{Outcome: Delivered, Path: path, SizeBytes: size}
}

func formatLimit(mb float64) string {
	s := fmt.Sprintf("%.2f", mb)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
