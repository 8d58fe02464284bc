package diarize

import (
	"errors"
	"fmt"
)

// ErrNotImplemented is returned when an external diarization backend is
// selected but none is wired in. It fails the request explicitly instead of
// returning an empty speaker set that would read as "no speakers detected".
var ErrNotImplemented = errors.New("external diarization backend not implemented")

// External selects an external diarization backend for the given mode.
// No backend ships with this build.
func External(mode Mode) ([]SpeakerSegment, error) {
	return nil, fmt.Errorf("mode %q: %w", mode, ErrNotImplemented)
}
