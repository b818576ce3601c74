package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ytfetch/backend/internal/config"
	"github.com/ytfetch/backend/internal/middleware"
	"github.com/ytfetch/backend/internal/videos"
)

func TestBuildDependencies(t *testing.T) {
	cfg := config.Config{
		YTDLPPath:            "/opt/yt-dlp",
		YTDLPTimeout:         time.Second,
		DownloadTimeout:      time.Minute,
		StreamTimeout:        3 * time.Minute,
		ClientProfile:        "web_safari",
		UseCookies:           true,
		CookiesFile:          "/etc/ytfetch/cookies.txt",
		MetadataCacheTTL:     time.Minute,
		CacheCleanupInterval: time.Minute,
		RateLimit:            config.RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 1},
	}

	deps, cleanup := buildDependencies(cfg)
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer cleanup()

	cache, ok := deps.VideoMetadata.(*videos.CachingProvider)
	if !ok {
		t.Fatalf("expected caching metadata provider got %T", deps.VideoMetadata)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache got %d", cache.Len())
	}

	downloader, ok := deps.VideoDownloads.(*videos.YTDLPProvider)
	if !ok {
		t.Fatalf("expected yt-dlp downloader got %T", deps.VideoDownloads)
	}
	if downloader.Binary != "/opt/yt-dlp" || downloader.ClientProfile != "web_safari" {
		t.Fatalf("unexpected downloader config: %+v", downloader)
	}
	if downloader.CookiesFile != "/etc/ytfetch/cookies.txt" {
		t.Fatalf("expected cookies file to be passed through got %q", downloader.CookiesFile)
	}
	if downloader.Timeout != time.Second || downloader.DownloadTimeout != time.Minute {
		t.Fatalf("unexpected timeouts: %s %s", downloader.Timeout, downloader.DownloadTimeout)
	}

	if deps.StreamTimeout != 3*time.Minute {
		t.Fatalf("expected stream timeout to be passed through got %s", deps.StreamTimeout)
	}

	limiter, ok := deps.RateLimiter.(*middleware.ClientRateLimiter)
	if !ok {
		t.Fatalf("expected client rate limiter got %T", deps.RateLimiter)
	}
	if !limiter.Allow("video_info:127.0.0.1") || limiter.Allow("video_info:127.0.0.1") {
		t.Fatal("expected configured burst of one")
	}
}

func TestBuildDependenciesWithoutCookies(t *testing.T) {
	deps, cleanup := buildDependencies(config.Config{CookiesFile: "cookies.txt"})
	defer cleanup()

	downloader := deps.VideoDownloads.(*videos.YTDLPProvider)
	if downloader.CookiesFile != "" {
		t.Fatalf("expected cookies to stay disabled got %q", downloader.CookiesFile)
	}
	if downloader.Binary != "yt-dlp" {
		t.Fatalf("expected default binary got %q", downloader.Binary)
	}
}

func TestRunRejectsUnknownCommands(t *testing.T) {
	if err := Run(context.Background(), nil); err == nil {
		t.Fatal("expected error without command")
	}
	if err := Run(context.Background(), []string{"migrate"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunServeFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("YTFETCH_PORT", "70000")

	err := Run(context.Background(), []string{"serve"})
	if err == nil {
		t.Fatal("expected config error")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}
