package videos

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable indicates the metadata provider is not configured.
	ErrProviderUnavailable = errors.New("video metadata provider unavailable")
	// ErrInvalidURL indicates the input is not a recognizable YouTube video URL.
	ErrInvalidURL = errors.New("invalid youtube url")
)

// ExtractionReason classifies why yt-dlp could not produce metadata.
type ExtractionReason string

const (
	ReasonUnavailable       ExtractionReason = "unavailable"
	ReasonPrivate           ExtractionReason = "private"
	ReasonAgeRestricted     ExtractionReason = "age_restricted"
	ReasonNetwork           ExtractionReason = "network"
	ReasonMalformedResponse ExtractionReason = "malformed_response"
	ReasonTimeout           ExtractionReason = "timeout"
	ReasonNoFormats         ExtractionReason = "no_formats"
)

// ExtractionError reports a failed extraction together with its cause.
type ExtractionError struct {
	Reason ExtractionReason
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsExtractionReason reports whether err is an ExtractionError with the given reason.
func IsExtractionReason(err error, reason ExtractionReason) bool {
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		return false
	}
	return extractionErr.Reason == reason
}
