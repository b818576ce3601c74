package handlers

import (
	"net/http"
	"time"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	videos := VideoHandler{
		Metadata:      deps.VideoMetadata,
		Downloads:     deps.VideoDownloads,
		Limiter:       deps.RateLimiter,
		StreamTimeout: deps.StreamTimeout,
	}

	mux.HandleFunc("/health", health.Handle)
	mux.HandleFunc("/get_video_info", videos.Info)
	mux.HandleFunc("/download", videos.Download)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	VideoMetadata  VideoMetadataProvider
	VideoDownloads VideoDownloader
	RateLimiter    RateLimiter
	StreamTimeout  time.Duration
}
