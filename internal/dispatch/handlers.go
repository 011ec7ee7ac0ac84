package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/action"
	"github.com/dayuer/tubebot/internal/bus"
	"github.com/dayuer/tubebot/internal/catalog"
	"github.com/dayuer/tubebot/internal/download"
	"github.com/dayuer/tubebot/internal/metrics"
	"github.com/dayuer/tubebot/internal/session"
	"github.com/dayuer/tubebot/internal/utils"
)

const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdSearch   = "search"
	cmdTrending = "trending"
)

// Reply texts.
const (
	WelcomeText        = "Welcome to the YouTube Telegram Bot! 🎥\nUse /search to find videos or /trending to see what's popular."
	SearchPrompt       = "What would you like to search for?"
	SearchTimedOut     = "Search timed out. Send /search to try again."
	EmptyQueryText     = "The search query is empty. Send /search to try again."
	FetchFailedText    = "Sorry, I couldn't fetch videos right now. Please try again later."
	QuotaExceededText  = "Sorry, the YouTube quota is exhausted for now. Please try again later."
	ProcessFailedText  = "Sorry, I couldn't process that video. Please try again later."
	UnknownCommandText = "Unknown command. Use /search to find videos or /trending to see what's popular."
	FreeTextHint       = "Use /search to find videos or /trending to see what's popular."
	StreamURLFormat    = "Stream URL: %s\n\nYou can play this in your preferred media player or browser."
)

// Callback acknowledgments.
const (
	AckPlay     = "Starting playback..."
	AckSearch   = "Use /search to find videos"
	AckTrending = "Fetching trending videos..."
)

func (d *Dispatcher) handleCommand(ctx context.Context, chatID int64, name string) {
	d.logger.Debug("command", zap.Int64("chat_id", chatID), zap.String("action", name))

	switch name {
	case cmdStart, cmdHelp:
		d.sendText(ctx, chatID, WelcomeText)
	case cmdTrending:
		d.trending(ctx, chatID)
	default:
		d.sendText(ctx, chatID, UnknownCommandText)
	}
}

// beginSearch starts the two-step search flow and returns its remainder. A
// query given inline with the command skips the prompt. The session is open
// once beginSearch returns.
func (d *Dispatcher) beginSearch(chatID int64, inline string) step {
	if inline != "" {
		d.sessions.Cancel(chatID)
		return func(ctx context.Context) { d.runSearch(ctx, chatID, inline) }
	}
	p := d.sessions.Begin(chatID, d.opts.SearchTimeout)
	return func(ctx context.Context) { d.awaitSearch(ctx, chatID, p) }
}

func (d *Dispatcher) awaitSearch(ctx context.Context, chatID int64, p *session.Pending) {
	if err := d.replier.SendText(ctx, chatID, SearchPrompt); err != nil {
		d.logger.Warn("send search prompt failed", zap.Int64("chat_id", chatID), zap.Error(err))
		abandoned, cancel := context.WithCancel(ctx)
		cancel()
		_, _ = d.sessions.Await(abandoned, p)
		return
	}

	query, err := d.sessions.Await(ctx, p)
	switch {
	case err == nil:
		metrics.IncSession("resolved")
	case errors.Is(err, session.ErrTimeout):
		metrics.IncSession("timeout")
		d.sendText(ctx, chatID, SearchTimedOut)
		return
	case errors.Is(err, session.ErrSuperseded):
		metrics.IncSession("superseded")
		return
	default:
		metrics.IncSession("canceled")
		return
	}

	query = strings.TrimSpace(query)
	if query == "" {
		d.sendText(ctx, chatID, EmptyQueryText)
		return
	}
	d.runSearch(ctx, chatID, query)
}

func (d *Dispatcher) runSearch(ctx context.Context, chatID int64, query string) {
	cctx, cancel := context.WithTimeout(ctx, d.opts.CatalogTimeout)
	start := time.Now()
	items, err := d.catalog.Search(cctx, query, d.opts.Limit)
	cancel()
	metrics.ObserveCatalog("search", time.Since(start).Seconds(), err)
	if err != nil {
		d.catalogFailed(ctx, chatID, "search", err)
		return
	}
	d.logger.Info("search", zap.Int64("chat_id", chatID), zap.String("query", query), zap.Int("results", len(items)))
	d.renderResults(ctx, chatID, items)
}

func (d *Dispatcher) trending(ctx context.Context, chatID int64) {
	cctx, cancel := context.WithTimeout(ctx, d.opts.CatalogTimeout)
	start := time.Now()
	items, err := d.catalog.Trending(cctx, d.opts.Region, d.opts.Limit)
	cancel()
	metrics.ObserveCatalog("trending", time.Since(start).Seconds(), err)
	if err != nil {
		d.catalogFailed(ctx, chatID, "trending", err)
		return
	}
	d.renderResults(ctx, chatID, items)
}

func (d *Dispatcher) catalogFailed(ctx context.Context, chatID int64, op string, err error) {
	d.logger.Warn("catalog request failed", zap.Int64("chat_id", chatID), zap.String("action", op), zap.Error(err))
	if errors.Is(err, catalog.ErrQuotaExceeded) {
		d.sendText(ctx, chatID, QuotaExceededText)
		return
	}
	d.sendText(ctx, chatID, FetchFailedText)
}

// renderResults sends one card per item, in order, limited to the
// configured result count.
func (d *Dispatcher) renderResults(ctx context.Context, chatID int64, items []catalog.VideoSummary) {
	sent := 0
	for _, item := range items {
		if sent == d.opts.Limit {
			break
		}
		if item.ID == "" {
			continue
		}
		d.sendCard(ctx, chatID, item)
		sent++
	}
}

func (d *Dispatcher) sendCard(ctx context.Context, chatID int64, item catalog.VideoSummary) {
	card := BuildUI(item)
	if d.thumbs != nil && item.ThumbnailURL != "" {
		path, err := d.thumbs.Fetch(ctx, item.ThumbnailURL)
		if err != nil {
			d.logger.Debug("thumbnail unavailable", zap.String("video_id", item.ID), zap.Error(err))
		} else {
			card.ThumbnailPath = path
			defer func() { _ = utils.RemoveFile(path) }()
		}
	}

	if err := d.replier.SendCard(ctx, chatID, card); err != nil {
		d.logger.Warn("send card failed", zap.Int64("chat_id", chatID), zap.String("video_id", item.ID), zap.Error(err))
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, ev bus.Event) {
	a, err := action.Decode(ev.Data)
	if err != nil {
		d.logger.Debug("ignoring callback", zap.Int64("chat_id", ev.ChatID), zap.String("data", ev.Data), zap.Error(err))
		d.ack(ctx, ev, "")
		return
	}
	d.logger.Debug("callback", zap.Int64("chat_id", ev.ChatID), zap.Stringer("action", a.Kind), zap.String("video_id", a.VideoID))

	switch a.Kind {
	case action.KindPlay:
		d.ack(ctx, ev, AckPlay)
		d.play(ctx, ev.ChatID, a.VideoID)
	case action.KindDownload:
		quality := normalizeQuality(a.Quality)
		d.ack(ctx, ev, "Preparing "+quality+" download...")
		d.download(ctx, ev.ChatID, a.VideoID, quality)
	case action.KindSearch:
		d.ack(ctx, ev, AckSearch)
	case action.KindTrending:
		d.ack(ctx, ev, AckTrending)
		d.trending(ctx, ev.ChatID)
	default:
		d.ack(ctx, ev, "")
	}
}

func (d *Dispatcher) play(ctx context.Context, chatID int64, videoID string) {
	url, err := d.media.ResolveStreamURL(ctx, videoID)
	if err != nil {
		d.logger.Warn("resolve stream failed", zap.Int64("chat_id", chatID), zap.String("video_id", videoID), zap.Error(err))
		d.sendText(ctx, chatID, ProcessFailedText)
		return
	}
	d.sendText(ctx, chatID, fmt.Sprintf(StreamURLFormat, url))
}

func (d *Dispatcher) download(ctx context.Context, chatID int64, videoID, quality string) {
	res := d.downloads.Download(ctx, download.Request{VideoID: videoID, Quality: quality},
		func(ctx context.Context, a download.Artifact) error {
			return d.replier.SendVideo(ctx, chatID, a.Path)
		})

	switch res.Outcome {
	case download.Delivered:
	case download.Rejected:
		d.sendText(ctx, chatID, res.Rejection.Reason())
	default:
		d.sendText(ctx, chatID, ProcessFailedText)
	}
}

// normalizeQuality turns a bare height such as "720" into "720p".
func normalizeQuality(q string) string {
	if _, err := strconv.Atoi(q); err == nil {
		return q + "p"
	}
	return q
}
