package videos

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goware/urlx"
)

var videoIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

var youtubeHosts = map[string]struct{}{
	"youtube.com":              {},
	"www.youtube.com":          {},
	"m.youtube.com":            {},
	"music.youtube.com":        {},
	"youtube-nocookie.com":     {},
	"www.youtube-nocookie.com": {},
	"youtu.be":                 {},
	"www.youtu.be":             {},
}

// Path prefixes that carry the identifier as the following segment.
var idPathPrefixes = []string{"v", "embed", "shorts", "live"}

// Reference identifies a single YouTube video by its canonical watch URL.
type Reference struct {
	id           string
	canonicalURL string
}

// ID returns the 11 character video identifier.
func (r Reference) ID() string { return r.id }

// CanonicalURL returns the watch URL stripped of tracking parameters.
func (r Reference) CanonicalURL() string { return r.canonicalURL }

// IsZero reports whether r was never populated by ParseReference.
func (r Reference) IsZero() bool { return r.id == "" }

// ParseReference validates raw and returns a Reference for the video it points to.
// Short links, embeds, shorts and watch URLs all resolve to the same reference.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	u, err := urlx.Parse(raw)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := youtubeHosts[host]; !ok {
		return Reference{}, fmt.Errorf("%w: unsupported host %q", ErrInvalidURL, host)
	}

	id := extractID(host, u.Path, u.Query().Get("v"))
	if !videoIDPattern.MatchString(id) {
		return Reference{}, fmt.Errorf("%w: no video id in %q", ErrInvalidURL, raw)
	}

	return newReference(id), nil
}

func newReference(id string) Reference {
	return Reference{
		id:           id,
		canonicalURL: "https://www.youtube.com/watch?v=" + id,
	}
}

func extractID(host, path, queryID string) string {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })

	if strings.HasSuffix(host, "youtu.be") {
		if len(segments) == 0 {
			return ""
		}
		return segments[0]
	}

	if len(segments) > 0 && segments[0] == "watch" {
		return queryID
	}

	if len(segments) >= 2 {
		for _, prefix := range idPathPrefixes {
			if segments[0] == prefix {
				return segments[1]
			}
		}
	}

	return queryID
}
