// Package config handles configuration loading, saving, and schema definition.
package config

import "time"

// Config is the top-level tubebot configuration.
// json/yaml tags are camelCase to match the config file format; envconfig
// tags name the environment variables that override file values.
type Config struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	YouTube  YouTubeConfig  `json:"youtube" yaml:"youtube"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Download DownloadConfig `json:"download" yaml:"download"`
	Trending TrendingConfig `json:"trending" yaml:"trending"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token       string   `json:"token" yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	Endpoint    string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty" envconfig:"TELEGRAM_API_ENDPOINT"`
	PollTimeout int      `json:"pollTimeout,omitempty" yaml:"pollTimeout,omitempty" envconfig:"TELEGRAM_POLL_TIMEOUT"`
	Debug       bool     `json:"debug,omitempty" yaml:"debug,omitempty" envconfig:"TELEGRAM_DEBUG"`
	AllowFrom   []string `json:"allowFrom,omitempty" yaml:"allowFrom,omitempty" envconfig:"TELEGRAM_ALLOW_FROM"`
}

// YouTubeConfig holds YouTube Data API settings.
type YouTubeConfig struct {
	APIKey            string   `json:"apiKey" yaml:"apiKey" envconfig:"YOUTUBE_API_KEY"`
	Endpoint          string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty" envconfig:"YOUTUBE_API_ENDPOINT"`
	Region            string   `json:"region,omitempty" yaml:"region,omitempty" envconfig:"YOUTUBE_REGION"`
	ResultLimit       int      `json:"resultLimit,omitempty" yaml:"resultLimit,omitempty" envconfig:"YOUTUBE_RESULT_LIMIT"`
	RequestTimeout    Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty" envconfig:"YOUTUBE_REQUEST_TIMEOUT"`
	RequestsPerSecond float64  `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty" envconfig:"YOUTUBE_REQUESTS_PER_SECOND"`
	SearchCacheTTL    Duration `json:"searchCacheTtl,omitempty" yaml:"searchCacheTtl,omitempty" envconfig:"YOUTUBE_SEARCH_CACHE_TTL"`
	TrendingCacheTTL  Duration `json:"trendingCacheTtl,omitempty" yaml:"trendingCacheTtl,omitempty" envconfig:"YOUTUBE_TRENDING_CACHE_TTL"`
}

// SearchConfig holds the conversational search settings.
type SearchConfig struct {
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" envconfig:"SEARCH_TIMEOUT"`
}

// DownloadConfig holds yt-dlp and size policy settings.
type DownloadConfig struct {
	LimitMB        float64  `json:"limitMb,omitempty" yaml:"limitMb,omitempty" envconfig:"DOWNLOAD_LIMIT_MB"`
	Dir            string   `json:"dir,omitempty" yaml:"dir,omitempty" envconfig:"DOWNLOAD_DIR"`
	Concurrency    int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty" envconfig:"DOWNLOAD_CONCURRENCY"`
	Timeout        Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" envconfig:"DOWNLOAD_TIMEOUT"`
	ResolveTimeout Duration `json:"resolveTimeout,omitempty" yaml:"resolveTimeout,omitempty" envconfig:"STREAM_RESOLVE_TIMEOUT"`
	YtdlpPath      string   `json:"ytdlpPath,omitempty" yaml:"ytdlpPath,omitempty" envconfig:"YTDLP_PATH"`
	YtdlpArgs      []string `json:"ytdlpArgs,omitempty" yaml:"ytdlpArgs,omitempty" envconfig:"YTDLP_ARGS"`
}

// TrendingConfig holds the background refresher settings.
type TrendingConfig struct {
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty" envconfig:"TRENDING_INTERVAL"`
}

// ServerConfig holds keep-alive server settings.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" envconfig:"HTTP_ADDR"`
	// Port is the hosting platform's PORT variable. It overrides Addr's port
	// when HTTP_ADDR is not set.
	Port string `json:"-" yaml:"-" envconfig:"PORT"`
}

// RedisConfig enables the shared result cache when URL is set.
type RedisConfig struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty" envconfig:"REDIS_URL"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" envconfig:"REDIS_PASSWORD"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty" envconfig:"LOG_LEVEL"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" envconfig:"LOG_FORMAT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Telegram: TelegramConfig{
			PollTimeout: 30,
		},
		YouTube: YouTubeConfig{
			Region:            "US",
			ResultLimit:       5,
			RequestTimeout:    Duration(15 * time.Second),
			RequestsPerSecond: 5,
			SearchCacheTTL:    Duration(10 * time.Minute),
			TrendingCacheTTL:  Duration(30 * time.Minute),
		},
		Search: SearchConfig{
			Timeout: Duration(30 * time.Second),
		},
		Download: DownloadConfig{
			LimitMB:        50,
			Concurrency:    2,
			Timeout:        Duration(10 * time.Minute),
			ResolveTimeout: Duration(time.Minute),
			YtdlpPath:      "yt-dlp",
		},
		Trending: TrendingConfig{
			Interval: Duration(time.Hour),
		},
		Server: ServerConfig{
			Addr: ":5000",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
