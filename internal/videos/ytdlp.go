package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytfetch/backend/internal/logging"
)

// CommandRunner executes a prepared yt-dlp command against url.
type CommandRunner func(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error)

// YTDLPProvider fetches metadata and downloads streams using the yt-dlp CLI tool.
type YTDLPProvider struct {
	Binary          string
	ClientProfile   string
	CookiesFile     string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	Run             CommandRunner
	TempDir         func() (string, error)
}

// YTDLPOptions configures NewYTDLPProvider.
type YTDLPOptions struct {
	Binary          string
	ClientProfile   string
	CookiesFile     string
	Timeout         time.Duration
	DownloadTimeout time.Duration
}

var qualityPriorities = []string{"1080p", "720p", "480p", "360p", "240p"}

const bytesPerMB = 1024 * 1024

// NewYTDLPProvider constructs a Provider that shells out to yt-dlp.
func NewYTDLPProvider(opts YTDLPOptions) *YTDLPProvider {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = maxDuration(2*opts.Timeout, 2*time.Minute)
	}
	return &YTDLPProvider{
		Binary:          opts.Binary,
		ClientProfile:   strings.TrimSpace(opts.ClientProfile),
		CookiesFile:     strings.TrimSpace(opts.CookiesFile),
		Timeout:         opts.Timeout,
		DownloadTimeout: opts.DownloadTimeout,
		Run:             defaultCommandRunner,
		TempDir:         defaultTempDir,
	}
}

// Lookup executes yt-dlp for the referenced video and maps its format list.
func (p *YTDLPProvider) Lookup(ctx context.Context, ref Reference) (_ Metadata, err error) {
	if p == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	if ref.IsZero() {
		return Metadata{}, ErrInvalidURL
	}

	ctx, span := logging.StartSpan(ctx, "ytdlp.lookup")
	defer func() { span.End(err) }()

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := p.baseCommand().
		DumpSingleJSON().
		SkipDownload()

	res, err := p.runner()(execCtx, cmd, ref.CanonicalURL())
	if err != nil {
		return Metadata{}, p.classify(execCtx, res, err)
	}
	if res == nil || strings.TrimSpace(res.Stdout) == "" {
		return Metadata{}, &ExtractionError{Reason: ReasonMalformedResponse, Err: errors.New("yt-dlp returned no output")}
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return Metadata{}, &ExtractionError{Reason: ReasonMalformedResponse, Err: fmt.Errorf("parse yt-dlp response: %w", err)}
	}

	metadata := info.toMetadata(ref)
	if len(metadata.Streams) == 0 {
		return Metadata{}, &ExtractionError{Reason: ReasonNoFormats, Err: errors.New("no downloadable formats")}
	}

	logging.FromContext(ctx).Info("extracted video metadata", "videoId", ref.ID(), "title", metadata.Title, "streams", len(metadata.Streams))
	return metadata, nil
}

// DownloadedAsset is a file produced by yt-dlp inside a private temporary directory.
type DownloadedAsset struct {
	Path string
	Name string
	Size int64

	dir string
}

// Cleanup removes the asset and its temporary directory.
func (a *DownloadedAsset) Cleanup() error {
	if a == nil || a.dir == "" {
		return nil
	}
	return os.RemoveAll(a.dir)
}

// Download fetches the requested format of ref. Callers must Cleanup the asset.
func (p *YTDLPProvider) Download(ctx context.Context, ref Reference, formatID string) (_ *DownloadedAsset, err error) {
	if p == nil {
		return nil, ErrProviderUnavailable
	}
	if ref.IsZero() {
		return nil, ErrInvalidURL
	}

	ctx, span := logging.StartSpan(ctx, "ytdlp.download")
	defer func() { span.End(err) }()

	mkdir := p.TempDir
	if mkdir == nil {
		mkdir = defaultTempDir
	}
	dir, err := mkdir()
	if err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, p.DownloadTimeout)
	defer cancel()

	cmd := p.baseCommand().
		Format(formatID).
		RestrictFilenames().
		Output(filepath.Join(dir, "%(title)s.%(ext)s"))

	res, err := p.runner()(execCtx, cmd, ref.CanonicalURL())
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, p.classify(execCtx, res, err)
	}

	asset, err := findDownloadedFile(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	logging.FromContext(ctx).Info("downloaded video stream", "videoId", ref.ID(), "formatId", formatID, "file", asset.Name, "size", asset.Size)
	return asset, nil
}

// extractorArgs returns the --extractor-args value selecting the client profile.
func (p *YTDLPProvider) extractorArgs() string {
	if p.ClientProfile == "" {
		return ""
	}
	return "youtube:player_client=" + p.ClientProfile
}

func (p *YTDLPProvider) baseCommand() *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(p.Binary).
		NoWarnings().
		NoPlaylist().
		SocketTimeout(p.Timeout.Seconds())

	if args := p.extractorArgs(); args != "" {
		cmd = cmd.ExtractorArgs(args)
	}
	if p.CookiesFile != "" {
		cmd = cmd.Cookies(p.CookiesFile)
	}
	return cmd
}

func (p *YTDLPProvider) runner() CommandRunner {
	if p.Run == nil {
		return defaultCommandRunner
	}
	return p.Run
}

// classify converts a failed yt-dlp invocation into an error the HTTP layer can map.
// A missing binary is a deployment fault, not an extraction outcome.
func (p *YTDLPProvider) classify(ctx context.Context, res *ytdlp.Result, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExtractionError{Reason: ReasonTimeout, Err: err}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("yt-dlp fetch: %w", err)
	}

	var stderr string
	if res != nil {
		stderr = res.Stderr
	}
	return &ExtractionError{Reason: reasonFromOutput(err.Error() + "\n" + stderr), Err: err}
}

func reasonFromOutput(output string) ExtractionReason {
	text := strings.ToLower(output)
	switch {
	case strings.Contains(text, "requested format is not available"):
		return ReasonNoFormats
	case strings.Contains(text, "private video"):
		return ReasonPrivate
	case strings.Contains(text, "confirm your age"),
		strings.Contains(text, "age-restricted"),
		strings.Contains(text, "inappropriate for some users"):
		return ReasonAgeRestricted
	case strings.Contains(text, "video unavailable"),
		strings.Contains(text, "has been removed"),
		strings.Contains(text, "is not available"),
		strings.Contains(text, "does not exist"),
		strings.Contains(text, "account associated with this video has been terminated"):
		return ReasonUnavailable
	case strings.Contains(text, "timed out"):
		return ReasonTimeout
	case strings.Contains(text, "unable to extract"),
		strings.Contains(text, "unsupported url"),
		strings.Contains(text, "jsondecodeerror"):
		return ReasonMalformedResponse
	default:
		return ReasonNetwork
	}
}

type ytdlpInfo struct {
	Title     string        `json:"title"`
	Thumbnail string        `json:"thumbnail"`
	Formats   []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	Height         *float64 `json:"height"`
	ABR            *float64 `json:"abr"`
	FileSize       *float64 `json:"filesize"`
	FileSizeApprox *float64 `json:"filesize_approx"`
}

func (info ytdlpInfo) toMetadata(ref Reference) Metadata {
	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = "Unknown Title"
	}
	thumbnail := strings.TrimSpace(info.Thumbnail)
	if thumbnail == "" {
		thumbnail = fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", ref.ID())
	}

	streams := videoStreams(info.Formats)
	if audio, ok := bestAudioStream(info.Formats); ok {
		streams = append(streams, audio)
	}

	return Metadata{Title: title, Thumbnail: thumbnail, Streams: streams}
}

// videoStreams keeps one progressive mp4 per known resolution, best first.
func videoStreams(formats []ytdlpFormat) []Stream {
	seen := make(map[string]struct{})
	var streams []Stream
	for _, f := range formats {
		if f.VCodec == "none" || f.ACodec == "none" || f.Ext != "mp4" || f.FormatID == "" {
			continue
		}
		if f.Height == nil || *f.Height <= 0 {
			continue
		}
		quality := fmt.Sprintf("%dp", int(*f.Height))
		if qualityRank(quality) < 0 {
			continue
		}
		if _, dup := seen[quality]; dup {
			continue
		}
		seen[quality] = struct{}{}

		streams = append(streams, Stream{
			Kind:      StreamKindVideo,
			Quality:   quality,
			MimeType:  "video/mp4",
			FormatID:  f.FormatID,
			SizeMB:    f.sizeMB(),
			Extension: "mp4",
		})
	}

	sort.SliceStable(streams, func(i, j int) bool {
		return qualityRank(streams[i].Quality) < qualityRank(streams[j].Quality)
	})
	return streams
}

// bestAudioStream picks the audio-only m4a/mp4 format with the highest bitrate.
func bestAudioStream(formats []ytdlpFormat) (Stream, bool) {
	var (
		best    *ytdlpFormat
		bestABR float64
	)
	for i := range formats {
		f := &formats[i]
		if f.VCodec != "none" || f.ACodec == "none" || f.FormatID == "" {
			continue
		}
		if f.Ext != "m4a" && f.Ext != "mp4" {
			continue
		}
		abr := 0.0
		if f.ABR != nil {
			abr = *f.ABR
		}
		if best == nil || abr > bestABR {
			best, bestABR = f, abr
		}
	}
	if best == nil {
		return Stream{}, false
	}

	quality := "MP3"
	if bestABR > 0 {
		quality = fmt.Sprintf("MP3 %dkbps", int(bestABR))
	}

	return Stream{
		Kind:      StreamKindAudio,
		Quality:   quality,
		MimeType:  "audio/mp4",
		FormatID:  best.FormatID,
		SizeMB:    best.sizeMB(),
		Extension: "mp4",
	}, true
}

func (f ytdlpFormat) sizeMB() *float64 {
	size := f.FileSize
	if size == nil || *size <= 0 {
		size = f.FileSizeApprox
	}
	if size == nil || *size <= 0 {
		return nil
	}
	mb := math.Round(*size/bytesPerMB*10) / 10
	return &mb
}

func qualityRank(quality string) int {
	for i, q := range qualityPriorities {
		if q == quality {
			return i
		}
	}
	return -1
}

func findDownloadedFile(dir string) (*DownloadedAsset, error) {
	var asset *DownloadedAsset
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".part") || strings.HasSuffix(d.Name(), ".ytdl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		asset = &DownloadedAsset{Path: path, Name: d.Name(), Size: info.Size(), dir: dir}
		return fs.SkipAll
	})
	if err != nil {
		return nil, fmt.Errorf("locate downloaded file: %w", err)
	}
	if asset == nil {
		return nil, errors.New("yt-dlp did not produce a file")
	}
	return asset, nil
}

func defaultCommandRunner(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error) {
	return cmd.Run(ctx, url)
}

func defaultTempDir() (string, error) {
	return os.MkdirTemp("", "ytfetch-")
}

func maxDuration(a, b time.Duration) time.Duration {
	if a >= b {
		return a
	}
	return b
}
