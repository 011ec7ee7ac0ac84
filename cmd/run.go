package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dayuer/tubebot/internal/bus"
	"github.com/dayuer/tubebot/internal/catalog"
	"github.com/dayuer/tubebot/internal/channels"
	"github.com/dayuer/tubebot/internal/config"
	"github.com/dayuer/tubebot/internal/dispatch"
	"github.com/dayuer/tubebot/internal/download"
	"github.com/dayuer/tubebot/internal/logging"
	"github.com/dayuer/tubebot/internal/media"
	"github.com/dayuer/tubebot/internal/server"
	"github.com/dayuer/tubebot/internal/session"
	"github.com/dayuer/tubebot/internal/thumbnail"
	"github.com/dayuer/tubebot/internal/trending"
)

var runAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (Telegram polling + keep-alive HTTP server)",
	RunE:  runBot,
}

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR/PORT)")
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runAddr != "" {
		cfg.Server.Addr = runAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	logger.Info("starting tubebot", zap.String("version", Version), zap.String("addr", cfg.Server.Addr))
	return b.run(ctx)
}

// bot is the wired process: transport, dispatcher, background workers and
// the keep-alive server.
type bot struct {
	logger     *zap.Logger
	bus        *bus.MessageBus
	channels   *channels.Manager
	telegram   *channels.TelegramChannel
	downloads  *download.Coordinator
	dispatcher *dispatch.Dispatcher
	sessions   *session.Engine
	refresher  *trending.Refresher
	server     *server.Server
	closeStore func()
}

func newBot(ctx context.Context, cfg config.Config, logger *zap.Logger) (*bot, error) {
	dir, err := workDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}

	yt, err := catalog.NewYouTube(ctx, catalog.YouTubeOptions{
		APIKey:            cfg.YouTube.APIKey,
		Endpoint:          cfg.YouTube.Endpoint,
		Timeout:           cfg.YouTube.RequestTimeout.D(),
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Logger:            logger.Named("youtube"),
	})
	if err != nil {
		return nil, err
	}
	store, closeStore := makeStore(ctx, cfg, logger.Named("redis"))
	cat := catalog.NewCached(yt, store, cfg.YouTube.SearchCacheTTL.D(), cfg.YouTube.TrendingCacheTTL.D())

	ytdlp := media.NewYtdlp(cfg.Download.YtdlpPath, dir, logger.Named("ytdlp"))
	ytdlp.ExtraArgs = cfg.Download.YtdlpArgs
	ytdlp.ResolveTimeout = cfg.Download.ResolveTimeout.D()
	ytdlp.DownloadTimeout = cfg.Download.Timeout.D()

	downloads := download.NewCoordinator(ytdlp, download.Options{
		LimitMB:     cfg.Download.LimitMB,
		Concurrency: int64(cfg.Download.Concurrency),
		Timeout:     cfg.Download.Timeout.D(),
		Logger:      logger.Named("download"),
	})

	msgBus := bus.NewMessageBus(bus.DefaultCapacity)
	tg := channels.NewTelegramChannel(channels.TelegramOptions{
		Token:       cfg.Telegram.Token,
		Endpoint:    cfg.Telegram.Endpoint,
		PollTimeout: cfg.Telegram.PollTimeout,
		Debug:       cfg.Telegram.Debug,
		AllowFrom:   cfg.Telegram.AllowFrom,
		Logger:      logger.Named("telegram"),
	}, msgBus)
	mgr := channels.NewManager(logger.Named("channels"))
	mgr.Register(tg)

	sessions := session.NewEngine()
	disp := dispatch.New(dispatch.Deps{
		Replier:    tg,
		Catalog:    cat,
		Media:      ytdlp,
		Thumbnails: thumbnail.NewFetcher(dir),
		Downloads:  downloads,
		Sessions:   sessions,
	}, dispatch.Options{
		Region:         cfg.YouTube.Region,
		Limit:          cfg.YouTube.ResultLimit,
		SearchTimeout:  cfg.Search.Timeout.D(),
		CatalogTimeout: cfg.YouTube.RequestTimeout.D(),
		Logger:         logger.Named("dispatch"),
	})

	refresher := trending.NewRefresher(cat, trending.Options{
		Region:   cfg.YouTube.Region,
		Limit:    cfg.YouTube.ResultLimit,
		Interval: cfg.Trending.Interval.D(),
		Logger:   logger.Named("trending"),
	})

	b := &bot{
		logger:     logger,
		bus:        msgBus,
		channels:   mgr,
		telegram:   tg,
		downloads:  downloads,
		dispatcher: disp,
		sessions:   sessions,
		refresher:  refresher,
		closeStore: closeStore,
	}
	b.server = server.New(cfg.Server.Addr, b.status, logger.Named("http"))
	return b, nil
}

// run blocks until ctx is canceled or a component fails, then drains.
func (b *bot) run(ctx context.Context) error {
	b.logger.Info("upload limit", zap.Float64("limit_mb", b.downloads.LimitMB()))
	g, gctx := errgroup.WithContext(ctx)

	b.refresher.Start(gctx)
	g.Go(func() error { return b.channels.StartAll(gctx) })
	g.Go(func() error {
		b.dispatcher.Run(gctx, b.bus)
		return nil
	})
	g.Go(func() error { return b.server.Start(gctx) })

	err := g.Wait()

	b.logger.Info("shutting down")
	b.channels.StopAll()
	b.refresher.Stop()
	b.sessions.Stop()
	b.dispatcher.Wait()
	b.logger.Info("shutdown complete")
	return err
}

func (b *bot) close() {
	if b.closeStore != nil {
		b.closeStore()
	}
}

func (b *bot) status(st *server.Status) {
	st.Bot = b.telegram.Username()
	st.Channels = b.channels.GetStatus()
	st.PendingSessions = b.sessions.Len()
	items, at := b.refresher.Snapshot()
	st.TrendingCount = len(items)
	if !at.IsZero() {
		st.TrendingAt = &at
	}
}
