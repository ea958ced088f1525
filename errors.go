package clarityreplay

import "github.com/kailas-cloud/clarityreplay/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNoRecording  = domain.ErrNoRecording
	ErrNotFound     = domain.ErrNotFound
	ErrUnknownKind  = domain.ErrUnknownKind
	ErrInvalidURI   = domain.ErrInvalidURI
	ErrWriteBlocked = domain.ErrWriteBlocked
)

// NoRecordingError names the recording playback looked for.
// Use errors.As() to get at it.
type NoRecordingError = domain.NoRecordingError

// ClarityError is an exception returned by the Clarity server.
type ClarityError = domain.ClarityError
