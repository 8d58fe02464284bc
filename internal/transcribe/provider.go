package transcribe

import (
	"context"

	"github.com/scribehost/scribed/internal/model"
)

// Provider is the interface for speech-to-text engines.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, m model.Info) (*Result, error)
	Name() string // "whispercpp", "remote"
}

// Result is the common transcription result from any provider.
type Result struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds, 0 if the engine doesn't report it
	Segments []Segment
}

// Segment is a timestamped span from the engine.
type Segment struct {
	Start           float64 // seconds
	End             float64 // seconds
	Text            string
	SpeakerTurnNext bool // tinydiarize-capable models flag a speaker change after this span
}
