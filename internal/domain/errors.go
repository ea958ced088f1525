package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoRecording signals that playback has nothing recorded for a request.
	ErrNoRecording = errors.New("no recording")
	// ErrNotFound signals a resource the server does not know.
	ErrNotFound = errors.New("not found")
	// ErrUnknownKind signals an entity kind outside the registry.
	ErrUnknownKind = errors.New("unknown entity kind")
	// ErrInvalidURI signals a URI no identifier can be taken from.
	ErrInvalidURI = errors.New("invalid uri")
	// ErrWriteBlocked signals a write refused by strict playback.
	ErrWriteBlocked = errors.New("write blocked during playback")
)

// NoRecordingError names the recording that playback looked for.
type NoRecordingError struct {
	What string // "file", "list file", "search"
	Name string
}

func (e *NoRecordingError) Error() string {
	if e.What == "search" {
		return fmt.Sprintf("There is no recorded search with the parameters given: %s", e.Name)
	}
	return fmt.Sprintf("There is no %s %s recorded.", e.What, e.Name)
}

func (e *NoRecordingError) Unwrap() error { return ErrNoRecording }

// NewNoRecording creates a NoRecordingError.
func NewNoRecording(what, name string) error {
	return &NoRecordingError{What: what, Name: name}
}

// ClarityError is an exception document returned by the Clarity server.
type ClarityError struct {
	Status     int
	Code       string
	Message    string
	Suggestion string
}

func (e *ClarityError) Error() string {
	msg := fmt.Sprintf("clarity: %d %s", e.Status, e.Message)
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

// Unwrap maps 404 responses onto ErrNotFound.
func (e *ClarityError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}
