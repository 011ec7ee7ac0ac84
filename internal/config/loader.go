package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// GetConfigPath returns the default config file path (~/.tubebot/config.json).
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tubebot", "config.json")
}

// Load reads configuration from a JSON or YAML file, then applies
// environment overrides. If path is empty, uses the default config path.
// A missing file is not an error: defaults plus environment are used.
// Load does not validate; call Validate before use.
func Load(path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg := DefaultConfig() // start with defaults so zero-value fields get filled
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return DefaultConfig(), fmt.Errorf("parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if cfg.Server.Port != "" && os.Getenv("HTTP_ADDR") == "" {
		host, _, err := net.SplitHostPort(cfg.Server.Addr)
		if err != nil {
			host = ""
		}
		cfg.Server.Addr = net.JoinHostPort(host, cfg.Server.Port)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Save writes configuration to a JSON or YAML file, chosen by extension.
// If path is empty, uses the default config path.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate reports every missing or out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.YouTube.APIKey == "" {
		errs = append(errs, errors.New("YOUTUBE_API_KEY is required"))
	}
	if c.YouTube.ResultLimit < 1 || c.YouTube.ResultLimit > 50 {
		errs = append(errs, fmt.Errorf("youtube.resultLimit must be between 1 and 50, got %d", c.YouTube.ResultLimit))
	}
	if c.Download.LimitMB <= 0 {
		errs = append(errs, fmt.Errorf("download.limitMb must be positive, got %v", c.Download.LimitMB))
	}
	if c.Download.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("download.concurrency must be at least 1, got %d", c.Download.Concurrency))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, errors.New("search.timeout must be positive"))
	}
	if c.Trending.Interval <= 0 {
		errs = append(errs, errors.New("trending.interval must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.Telegram.Token = mask(c.Telegram.Token)
	c.YouTube.APIKey = mask(c.YouTube.APIKey)
	c.Redis.Password = mask(c.Redis.Password)
	c.Redis.URL = maskURL(c.Redis.URL)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func maskURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "****" + u[at:]
}
