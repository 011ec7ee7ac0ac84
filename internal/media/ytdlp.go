package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/catalog"
	"github.com/dayuer/tubebot/internal/logging"
	"github.com/dayuer/tubebot/internal/retry"
	"github.com/dayuer/tubebot/internal/utils"
)

const (
	defaultYtdlpPath       = "yt-dlp"
	defaultResolveTimeout  = time.Minute
	defaultDownloadTimeout = 10 * time.Minute
)

// Ytdlp implements Provider by running yt-dlp as a subprocess.
type Ytdlp struct {
	// Path is the yt-dlp executable. Defaults to "yt-dlp".
	Path string
	// Dir receives downloaded files. Defaults to os.TempDir().
	Dir string
	// ExtraArgs are passed to every invocation (e.g. --cookies).
	ExtraArgs []string

	ResolveTimeout  time.Duration
	DownloadTimeout time.Duration
	RetryConfig     *retry.Config
	Logger          *zap.Logger
}

// NewYtdlp creates a yt-dlp provider writing into dir.
func NewYtdlp(path, dir string, logger *zap.Logger) *Ytdlp {
	cfg := retry.DefaultConfig()
	return &Ytdlp{
		Path:            path,
		Dir:             dir,
		ResolveTimeout:  defaultResolveTimeout,
		DownloadTimeout: defaultDownloadTimeout,
		RetryConfig:     &cfg,
		Logger:          logging.OrNop(logger),
	}
}

// ResolveStreamURL asks yt-dlp for the direct URL of the "best" format.
func (y *Ytdlp) ResolveStreamURL(ctx context.Context, videoID string) (string, error) {
	cfg := retry.DefaultConfig()
	if y.RetryConfig != nil {
		cfg = *y.RetryConfig
	}

	var streamURL string
	err := retry.Do(ctx, cfg, isRetryable, func(ctx context.Context) error {
		args := append([]string{"-f", "best", "-g", "--no-playlist", "--no-warnings"}, y.ExtraArgs...)
		args = append(args, catalog.WatchURL(videoID))

		stdout, err := y.run(ctx, y.timeout(y.ResolveTimeout, defaultResolveTimeout), args)
		if err != nil {
			return err
		}
		line, _, _ := strings.Cut(strings.TrimSpace(stdout), "\n")
		if line == "" {
			return retry.Permanent(ErrNoOutput)
		}
		streamURL = strings.TrimSpace(line)
		return nil
	})
	if err != nil {
		return "", &Error{Op: "resolve", VideoID: videoID, Err: err}
	}
	return streamURL, nil
}

// Download fetches the video capped at maxHeight into Dir. Every file the
// run created is removed when it fails.
func (y *Ytdlp) Download(ctx context.Context, videoID string, maxHeight int) (string, error) {
	if maxHeight <= 0 {
		return "", &Error{Op: "download", VideoID: videoID, Err: fmt.Errorf("invalid max height %d", maxHeight)}
	}
	dir := y.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if _, err := utils.EnsureDir(dir); err != nil {
		return "", &Error{Op: "download", VideoID: videoID, Err: err}
	}

	base := uuid.NewString()
	format := fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", maxHeight, maxHeight)
	args := []string{
		"-f", format,
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"-o", filepath.Join(dir, base+".%(ext)s"),
	}
	args = append(args, y.ExtraArgs...)
	args = append(args, catalog.WatchURL(videoID))

	start := time.Now()
	_, runErr := y.run(ctx, y.timeout(y.DownloadTimeout, defaultDownloadTimeout), args)

	matches, _ := filepath.Glob(filepath.Join(dir, base+".*"))
	if runErr != nil {
		removeAll(matches)
		return "", &Error{Op: "download", VideoID: videoID, Err: runErr}
	}

	// The merged output has the shortest name; format fragments such as
	// <base>.f137.mp4 may linger when merging is interrupted.
	var result string
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		if result == "" || len(m) < len(result) {
			result = m
		}
	}
	for _, m := range matches {
		if m != result {
			_ = utils.RemoveFile(m)
		}
	}
	if result == "" {
		return "", &Error{Op: "download", VideoID: videoID, Err: ErrNoOutput}
	}

	y.logger().Info("download finished",
		zap.String("video_id", videoID),
		zap.Int("max_height", maxHeight),
		zap.String("path", result),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// run executes yt-dlp with a timeout and classifies failures from stderr.
func (y *Ytdlp) run(ctx context.Context, timeout time.Duration, args []string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, y.path(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return "", retry.Permanent(ErrYtdlpNotInstalled)
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", ErrTimeout
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", classifyStderr(err, stderr.String())
}

func classifyStderr(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "requested format is not available"):
		return retry.Permanent(ErrFormatUnavailable)
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "is not a valid url"),
		strings.Contains(lower, "incomplete youtube id"),
		strings.Contains(lower, "has been removed"):
		return retry.Permanent(ErrVideoUnavailable)
	case strings.Contains(lower, "429"), strings.Contains(lower, "too many requests"):
		return ErrRateLimited
	}
	if msg == "" {
		return fmt.Errorf("yt-dlp failed: %w", err)
	}
	return fmt.Errorf("yt-dlp failed: %w: %s", err, lastLine(msg))
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return false
	}
	return retry.IsRetryable(err)
}

func isPartial(path string) bool {
	return strings.HasSuffix(path, ".part") || strings.HasSuffix(path, ".ytdl") || strings.HasSuffix(path, ".temp")
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = utils.RemoveFile(p)
	}
}

func lastLine(s string) string {
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (y *Ytdlp) timeout(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func (y *Ytdlp) path() string {
	if y.Path != "" {
		return y.Path
	}
	return defaultYtdlpPath
}

func (y *Ytdlp) logger() *zap.Logger {
	return logging.OrNop(y.Logger)
}
