package handlers

import (
	"context"

	"github.com/ytfetch/backend/internal/videos"
)

// VideoMetadataProvider resolves stream metadata for a normalized video reference.
type VideoMetadataProvider interface {
	Lookup(ctx context.Context, ref videos.Reference) (videos.Metadata, error)
}

// VideoDownloader fetches a single stream of a video to a temporary file.
type VideoDownloader interface {
	Download(ctx context.Context, ref videos.Reference, formatID string) (*videos.DownloadedAsset, error)
}
