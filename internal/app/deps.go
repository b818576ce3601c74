package app

import (
	"github.com/ytfetch/backend/internal/config"
	"github.com/ytfetch/backend/internal/handlers"
	"github.com/ytfetch/backend/internal/middleware"
	"github.com/ytfetch/backend/internal/videos"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup releases the caches and must run on shutdown.
func buildDependencies(cfg config.Config) (handlers.Dependencies, func()) {
	ytDlp := videos.NewYTDLPProvider(videos.YTDLPOptions{
		Binary:          cfg.YTDLPPath,
		ClientProfile:   cfg.ClientProfile,
		CookiesFile:     cfg.CookiesPath(),
		Timeout:         cfg.YTDLPTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
	})
	metadataProvider := videos.NewCachingProvider(ytDlp, cfg.MetadataCacheTTL, cfg.CacheCleanupInterval)
	limiter := middleware.NewClientRateLimiter(
		cfg.RateLimit.Requests,
		cfg.RateLimit.Window,
		cfg.RateLimit.Burst,
		2*cfg.RateLimit.Window,
	)

	cleanup := func() {
		metadataProvider.Close()
		limiter.Close()
	}

	return handlers.Dependencies{
		VideoMetadata:  metadataProvider,
		VideoDownloads: ytDlp,
		RateLimiter:    limiter,
		StreamTimeout:  cfg.StreamTimeout,
	}, cleanup
}
