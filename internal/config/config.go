package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
)

// Config captures the runtime configuration for the ytfetch backend service.
type Config struct {
	AppPort  int
	LogLevel string

	YTDLPPath       string
	YTDLPTimeout    time.Duration
	DownloadTimeout time.Duration
	// StreamTimeout bounds sending a finished download to the client.
	StreamTimeout time.Duration
	// ClientProfile selects the YouTube player clients yt-dlp emulates
	// (for example "web_safari,mweb"). Empty leaves the choice to yt-dlp.
	ClientProfile string
	UseCookies    bool
	CookiesFile   string

	MetadataCacheTTL     time.Duration
	CacheCleanupInterval time.Duration

	RateLimit RateLimitConfig
}

// RateLimitConfig controls the per-client request budget for extraction endpoints.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Load reads configuration from environment variables, applying sensible defaults
// for local development while allowing overrides through environment variables.
func Load() (Config, error) {
	cfg := Config{
		AppPort:              env.Int("YTFETCH_PORT", 8080),
		LogLevel:             env.Str("YTFETCH_LOG_LEVEL", "info"),
		YTDLPPath:            env.Str("YTFETCH_YTDLP_PATH", "yt-dlp"),
		YTDLPTimeout:         env.Duration("YTFETCH_YTDLP_TIMEOUT", 30*time.Second),
		DownloadTimeout:      env.Duration("YTFETCH_DOWNLOAD_TIMEOUT", 5*time.Minute),
		StreamTimeout:        env.Duration("YTFETCH_STREAM_TIMEOUT", 10*time.Minute),
		ClientProfile:        strings.TrimSpace(env.Str("YTFETCH_CLIENT_PROFILE", "")),
		CookiesFile:          env.Str("YTFETCH_COOKIES_FILE", "cookies.txt"),
		MetadataCacheTTL:     env.Duration("YTFETCH_METADATA_CACHE_TTL", time.Hour),
		CacheCleanupInterval: env.Duration("YTFETCH_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		RateLimit: RateLimitConfig{
			Requests: env.Int("YTFETCH_RATE_LIMIT_REQUESTS", 30),
			Window:   env.Duration("YTFETCH_RATE_LIMIT_WINDOW", time.Minute),
			Burst:    env.Int("YTFETCH_RATE_LIMIT_BURST", 10),
		},
	}

	useCookies, err := strconv.ParseBool(strings.TrimSpace(env.Str("YTFETCH_USE_COOKIES", "false")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid YTFETCH_USE_COOKIES: %w", err)
	}
	cfg.UseCookies = useCookies

	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return Config{}, fmt.Errorf("invalid YTFETCH_PORT %d", cfg.AppPort)
	}
	if cfg.UseCookies && strings.TrimSpace(cfg.CookiesFile) == "" {
		return Config{}, fmt.Errorf("YTFETCH_USE_COOKIES requires YTFETCH_COOKIES_FILE")
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// CookiesPath returns the cookie file handed to yt-dlp, or "" when the
// cookie authentication mode is disabled.
func (c Config) CookiesPath() string {
	if !c.UseCookies {
		return ""
	}
	return strings.TrimSpace(c.CookiesFile)
}

// ParseLogLevel maps the configured level name onto a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid YTFETCH_LOG_LEVEL %q", level)
	}
}
