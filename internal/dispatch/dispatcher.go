// Package dispatch routes inbound chat events to the bot's handlers.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/bus"
	"github.com/dayuer/tubebot/internal/catalog"
	"github.com/dayuer/tubebot/internal/download"
	"github.com/dayuer/tubebot/internal/logging"
	"github.com/dayuer/tubebot/internal/media"
	"github.com/dayuer/tubebot/internal/metrics"
	"github.com/dayuer/tubebot/internal/session"
)

const (
	DefaultLimit          = 5
	DefaultSearchTimeout  = 30 * time.Second
	DefaultCatalogTimeout = 15 * time.Second
)

// ThumbnailFetcher stores a thumbnail locally. Any error means no thumbnail.
type ThumbnailFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators of a Dispatcher. Thumbnails may be nil.
type Deps struct {
	Replier    Replier
	Catalog    catalog.Provider
	Media      media.Provider
	Thumbnails ThumbnailFetcher
	Downloads  *download.Coordinator
	Sessions   *session.Engine
}

// Options tunes the handlers. Zero values take defaults.
type Options struct {
	Region         string
	Limit          int
	SearchTimeout  time.Duration
	CatalogTimeout time.Duration
	Logger         *zap.Logger
}

// Dispatcher handles one event per goroutine.
type Dispatcher struct {
	replier   Replier
	catalog   catalog.Provider
	media     media.Provider
	thumbs    ThumbnailFetcher
	downloads *download.Coordinator
	sessions  *session.Engine

	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New creates a Dispatcher. A nil Downloads or Sessions gets a default one.
func New(deps Deps, opts Options) *Dispatcher {
	if opts.Region == "" {
		opts.Region = catalog.DefaultRegion
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultSearchTimeout
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = DefaultCatalogTimeout
	}
	logger := logging.OrNop(opts.Logger)

	if deps.Downloads == nil {
		deps.Downloads = download.NewCoordinator(deps.Media, download.Options{Logger: logger})
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewEngine()
	}

	return &Dispatcher{
		replier:   deps.Replier,
		catalog:   deps.Catalog,
		media:     deps.Media,
		thumbs:    deps.Thumbnails,
		downloads: deps.Downloads,
		sessions:  deps.Sessions,
		opts:      opts,
		logger:    logger,
	}
}

// Sessions exposes the session engine, mainly for shutdown.
func (d *Dispatcher) Sessions() *session.Engine {
	return d.sessions
}

// Run consumes the bus until ctx is done. Each event is routed in arrival
// order and then handled on its own goroutine. Run does not wait for
// in-flight handlers; use Wait for that.
func (d *Dispatcher) Run(ctx context.Context, b *bus.MessageBus) {
	for {
		ev, ok := b.ConsumeInbound(ctx)
		if !ok {
			return
		}
		d.Dispatch(ctx, ev)
	}
}

// Dispatch routes ev before returning and runs the rest of its handler
// asynchronously. Session state changes happen during routing, so events
// dispatched one after another see each other's sessions.
func (d *Dispatcher) Dispatch(ctx context.Context, ev bus.Event) {
	next := d.prepare(ev)
	if next == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.recoverPanic(ev)
		next(ctx)
	}()
}

// Wait blocks until every dispatched handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle routes ev and blocks until its handler finishes. Panics are
// recovered and logged.
func (d *Dispatcher) Handle(ctx context.Context, ev bus.Event) {
	if next := d.prepare(ev); next != nil {
		defer d.recoverPanic(ev)
		next(ctx)
	}
}

// step is the part of handling an event that may block on I/O.
type step func(ctx context.Context)

func (d *Dispatcher) prepare(ev bus.Event) step {
	defer d.recoverPanic(ev)
	metrics.IncEvent(string(ev.Kind))
	return d.route(ev)
}

// route applies the event's effect on pending sessions and returns what is
// left to do, or nil. It does not block.
func (d *Dispatcher) route(ev bus.Event) step {
	chatID := ev.ChatID
	switch ev.Kind {
	case bus.KindText, bus.KindCommand:
		name, args := parseCommand(ev)
		// A pending search consumes anything typed, even "/trending". Only a
		// new /search restarts the prompt, superseding the pending one.
		if name != cmdSearch && d.sessions.Resolve(chatID, ev.Text) {
			d.logger.Debug("session resolved", zap.Int64("chat_id", chatID))
			return nil
		}
		switch name {
		case "":
			return func(ctx context.Context) { d.sendText(ctx, chatID, FreeTextHint) }
		case cmdSearch:
			return d.beginSearch(chatID, args)
		}
		return func(ctx context.Context) { d.handleCommand(ctx, chatID, name) }
	case bus.KindCallback:
		return func(ctx context.Context) { d.handleCallback(ctx, ev) }
	default:
		d.logger.Debug("ignoring event", zap.String("kind", string(ev.Kind)))
		return nil
	}
}

func (d *Dispatcher) recoverPanic(ev bus.Event) {
	if r := recover(); r != nil {
		metrics.HandlerPanicsTotal.Inc()
		d.logger.Error("handler panic",
			zap.Int64("chat_id", ev.ChatID),
			zap.String("kind", string(ev.Kind)),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}

// parseCommand returns the lowercased command name without slash or @bot
// suffix, or "" if ev is not a command.
func parseCommand(ev bus.Event) (name, args string) {
	if ev.Kind == bus.KindCommand && ev.Command != "" {
		return strings.ToLower(ev.Command), strings.TrimSpace(ev.Args)
	}
	text := strings.TrimSpace(ev.Text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func (d *Dispatcher) sendText(ctx context.Context, chatID int64, text string) {
	if err := d.replier.SendText(ctx, chatID, text); err != nil {
		d.logger.Warn("send text failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) ack(ctx context.Context, ev bus.Event, text string) {
	if ev.CallbackID == "" {
		return
	}
	if err := d.replier.AnswerCallback(ctx, ev.CallbackID, text); err != nil {
		d.logger.Warn("answer callback failed", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
	}
}
