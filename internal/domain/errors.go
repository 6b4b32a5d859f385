package domain

import (
	"context"
	"errors"
)

// Stage and store errors. Adapters wrap these with %w so callers can
// classify failures without depending on adapter packages.
var (
	ErrFetch               = errors.New("fetch failed")
	ErrNoTranscript        = errors.New("no transcript available")
	ErrTranscriptsDisabled = errors.New("transcripts disabled")
	ErrVideoUnavailable    = errors.New("video unavailable")
	ErrTranscriptTooShort  = errors.New("transcript too short")
	ErrGeneration          = errors.New("article generation failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPublish             = errors.New("publish failed")
	ErrConfiguration       = errors.New("configuration error")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrNotFound            = errors.New("not found")

	ErrChannelProjectMismatch = errors.New("channel does not belong to project")
	ErrProjectNotLoaded       = errors.New("project not loaded")
)

// Kind groups errors by how the monitor reacts to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient errors are retried on the next iteration; nothing is marked processed.
	KindTransient
	// KindPermanentVideo errors can never succeed for the video; it is marked processed.
	KindPermanentVideo
	KindGeneration
	KindPublish
	KindConfiguration
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanentVideo:
		return "permanent_video"
	case KindGeneration:
		return "generation"
	case KindPublish:
		return "publish"
	case KindConfiguration:
		return "configuration"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Classify maps an error chain onto a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNoTranscript),
		errors.Is(err, ErrTranscriptsDisabled),
		errors.Is(err, ErrVideoUnavailable),
		errors.Is(err, ErrTranscriptTooShort):
		return KindPermanentVideo
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	case errors.Is(err, ErrPublish):
		return KindPublish
	case errors.Is(err, ErrFetch),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsPermanentVideo reports whether err means the video can never yield an article.
func IsPermanentVideo(err error) bool {
	return Classify(err) == KindPermanentVideo
}
