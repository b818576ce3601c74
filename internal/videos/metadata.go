package videos

import "context"

// StreamKind distinguishes combined video streams from audio-only streams.
type StreamKind string

const (
	StreamKindVideo StreamKind = "video"
	StreamKindAudio StreamKind = "audio"
)

// Stream describes one downloadable variant of a video.
type Stream struct {
	Kind      StreamKind
	Quality   string
	MimeType  string
	FormatID  string
	SizeMB    *float64
	Extension string
}

// Metadata captures the video details served to clients.
type Metadata struct {
	Title     string
	Thumbnail string
	Streams   []Stream
}

// clone returns a copy that shares no slices with m.
func (m Metadata) clone() Metadata {
	out := m
	if m.Streams != nil {
		out.Streams = make([]Stream, len(m.Streams))
		copy(out.Streams, m.Streams)
	}
	return out
}

// Provider returns metadata for the referenced video.
type Provider interface {
	Lookup(ctx context.Context, ref Reference) (Metadata, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, ref Reference) (Metadata, error)

// Lookup implements Provider.
func (f ProviderFunc) Lookup(ctx context.Context, ref Reference) (Metadata, error) {
	return f(ctx, ref)
}
