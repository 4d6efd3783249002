// Package audio provides the narration playback primitive: a Backend that turns an
// audio source into a Clip, and a Clip that can be started, observed for completion
// and released.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Source is an opaque, openable audio reference.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// Backend creates clips. Implementations must be safe for concurrent use.
type Backend interface {
	CreateClip(ctx context.Context, src Source) (Clip, error)
}

// Clip is one loaded, playable audio resource.
type Clip interface {
	// Start begins playback. Errors are not fatal to the caller.
	Start() error
	// Done is closed exactly once when playback reaches the end of the clip.
	// It is never closed for a clip released before its end.
	Done() <-chan struct{}
	// Release stops playback and frees the clip. It is idempotent.
	Release() error
}

var (
	// ErrUnsupportedFormat means no decoder is registered for the source.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrBackendUnavailable means the platform cannot play audio at all.
	ErrBackendUnavailable = errors.New("audio backend unavailable")

	// ErrReleased is returned when starting a clip that was already released.
	ErrReleased = errors.New("clip already released")
)

// ClipCreationError reports that a clip could not be created or loaded.
type ClipCreationError struct {
	Ref string
	Err error
}

func (e *ClipCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: create clip %q: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("audio: create clip %q", e.Ref)
}

func (e *ClipCreationError) Unwrap() error {
	return e.Err
}

// NewClipCreationError wraps err for the source named ref.
func NewClipCreationError(ref string, err error) *ClipCreationError {
	return &ClipCreationError{Ref: ref, Err: err}
}

// IsClipCreation checks if err is a clip creation failure.
func IsClipCreation(err error) bool {
	var cerr *ClipCreationError
	return errors.As(err, &cerr)
}
