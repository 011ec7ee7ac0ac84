package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/catalog"
	"github.com/dayuer/tubebot/internal/config"
	"github.com/dayuer/tubebot/internal/redis"
	"github.com/dayuer/tubebot/internal/utils"
)

// loadConfig reads the config file named by --config (or the default path)
// with environment overrides applied.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// resolvedConfigPath is the file loadConfig reads.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}

// workDir returns the directory for downloads and thumbnails, creating it.
func workDir(cfg config.Config) (string, error) {
	dir := cfg.Download.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "tubebot")
	}
	return utils.EnsureDir(dir)
}

// makeStore picks the catalog cache backend. Redis is used when configured
// and reachable; otherwise results are cached in process memory.
func makeStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.Store, func()) {
	if cfg.Redis.URL == "" {
		return catalog.NewMemoryStore(), func() {}
	}
	r, err := redis.Open(ctx, redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password}, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		return catalog.NewMemoryStore(), func() {}
	}
	return catalog.NewRedisStore(r), func() { _ = r.Close() }
}

// healthURL turns a listen address into the local /healthz URL.
func healthURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + strings.TrimPrefix(addr, "http://") + "/healthz"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz"
}
