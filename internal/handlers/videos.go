package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ytfetch/backend/internal/logging"
	"github.com/ytfetch/backend/internal/videos"
)

const (
	maxRequestBody       = 1 << 20
	defaultStreamTimeout = 10 * time.Minute
)

var formatIDPattern = regexp.MustCompile(`^[0-9A-Za-z_+-]{1,32}$`)

// VideoHandler serves stream metadata and downloads for YouTube videos.
type VideoHandler struct {
	Metadata  VideoMetadataProvider
	Downloads VideoDownloader
	Limiter   RateLimiter
	// StreamTimeout is the write deadline granted for sending a finished
	// download, counted from when the file is ready.
	StreamTimeout time.Duration
}

type videoInfoRequest struct {
	URL string `json:"url"`
}

type videoInfoResponse struct {
	Title     string           `json:"title"`
	Thumbnail string           `json:"thumbnail"`
	Formats   []formatResponse `json:"formats"`
}

type formatResponse struct {
	Type       string   `json:"type"`
	Quality    string   `json:"quality"`
	MimeType   string   `json:"mime_type"`
	Itag       string   `json:"itag"`
	FileSizeMB *float64 `json:"filesize_mb"`
	FormatID   string   `json:"format_id"`
	Ext        string   `json:"ext"`
}

// Info handles POST /get_video_info.
func (h VideoHandler) Info(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, scopeVideoInfo) {
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	if h.Metadata == nil {
		logger.Error("video metadata provider unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}

	var req videoInfoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		logger.Warn("invalid video info payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		respondError(ctx, w, http.StatusBadRequest, "URL cannot be empty")
		return
	}

	ref, err := videos.ParseReference(rawURL)
	if err != nil {
		logger.Warn("rejected video url", "url", rawURL, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	metadata, err := h.Metadata.Lookup(ctx, ref)
	if err != nil {
		h.respondLookupError(w, r, ref, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, newVideoInfoResponse(metadata))
}

// Download handles GET /download?url=...&itag=... by streaming the requested format.
func (h VideoHandler) Download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, scopeDownload) {
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	if h.Downloads == nil {
		logger.Error("video downloader unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}

	query := r.URL.Query()
	rawURL := strings.TrimSpace(query.Get("url"))
	formatID := strings.TrimSpace(query.Get("itag"))
	if rawURL == "" || formatID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing URL or format ID parameter")
		return
	}

	ref, err := videos.ParseReference(rawURL)
	if err != nil {
		logger.Warn("rejected download url", "url", rawURL, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	if !formatIDPattern.MatchString(formatID) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid format ID")
		return
	}

	asset, err := h.Downloads.Download(ctx, ref, formatID)
	if err != nil {
		if videos.IsExtractionReason(err, videos.ReasonNoFormats) {
			logger.Warn("requested format unavailable", "videoId", ref.ID(), "formatId", formatID, "error", err)
			respondError(ctx, w, http.StatusBadRequest, "Invalid format ID or stream not found")
			return
		}
		h.respondLookupError(w, r, ref, err)
		return
	}
	defer func() {
		if err := asset.Cleanup(); err != nil {
			logger.Error("remove downloaded asset", "path", asset.Path, "error", err)
		}
	}()

	file, err := os.Open(asset.Path)
	if err != nil {
		logger.Error("open downloaded asset", "path", asset.Path, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		logger.Error("stat downloaded asset", "path", asset.Path, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Restart the write clock; part of the server timeout went to yt-dlp.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.streamTimeout())); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("extend download write deadline", "error", err)
	}

	w.Header().Set("Content-Type", contentTypeFor(asset.Name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": asset.Name}))
	http.ServeContent(w, r, asset.Name, info.ModTime(), file)
}

func (h VideoHandler) streamTimeout() time.Duration {
	if h.StreamTimeout <= 0 {
		return defaultStreamTimeout
	}
	return h.StreamTimeout
}

func (h VideoHandler) respondLookupError(w http.ResponseWriter, r *http.Request, ref videos.Reference, err error) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if errors.Is(err, videos.ErrInvalidURL) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	var extractionErr *videos.ExtractionError
	if errors.As(err, &extractionErr) {
		status, message := extractionFailure(extractionErr.Reason)
		logger.Warn("video extraction failed", "videoId", ref.ID(), "reason", extractionErr.Reason, "error", err)
		respondError(ctx, w, status, message)
		return
	}

	logger.Error("video lookup failed", "videoId", ref.ID(), "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "internal server error")
}

func extractionFailure(reason videos.ExtractionReason) (int, string) {
	switch reason {
	case videos.ReasonUnavailable:
		return http.StatusNotFound, "This video is unavailable."
	case videos.ReasonPrivate:
		return http.StatusForbidden, "This video is private."
	case videos.ReasonAgeRestricted:
		return http.StatusForbidden, "This video is age-restricted and cannot be accessed."
	case videos.ReasonNoFormats:
		return http.StatusUnprocessableEntity, "No downloadable formats found. The video may have restrictions."
	case videos.ReasonTimeout:
		return http.StatusGatewayTimeout, "Timed out while contacting YouTube. Please try again."
	case videos.ReasonMalformedResponse:
		return http.StatusBadGateway, "Received an unexpected response from YouTube."
	default:
		return http.StatusBadGateway, "Unable to reach YouTube. Please try again later."
	}
}

func newVideoInfoResponse(metadata videos.Metadata) videoInfoResponse {
	formats := make([]formatResponse, 0, len(metadata.Streams))
	for _, s := range metadata.Streams {
		formats = append(formats, formatResponse{
			Type:       string(s.Kind),
			Quality:    s.Quality,
			MimeType:   s.MimeType,
			Itag:       s.FormatID,
			FileSizeMB: s.SizeMB,
			FormatID:   s.FormatID,
			Ext:        s.Extension,
		})
	}
	return videoInfoResponse{
		Title:     metadata.Title,
		Thumbnail: metadata.Thumbnail,
		Formats:   formats,
	}
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".m4a", ".mp3":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
