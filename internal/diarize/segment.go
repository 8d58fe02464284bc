// Package diarize assigns speaker labels to transcript segments by merging
// two independently produced time series: transcript segments from the
// engine and speaker segments from a diarization method.
package diarize

import "fmt"

// UnknownSpeaker labels transcript segments with no temporal overlap against
// any speaker segment.
const UnknownSpeaker = "SPEAKER_UNKNOWN"

// Method identifies how speaker segments were produced.
type Method string

const (
	// MethodChannel derives speakers from per-channel energy in multi-channel
	// recordings (one speaker per channel).
	MethodChannel Method = "channel"

	// MethodSpeakerTurns uses the engine's native speaker-turn flags
	// (tinydiarize-capable models).
	MethodSpeakerTurns Method = "tinydiarize"

	// MethodExternal delegates to an external diarization backend selected
	// by mode (fast, balanced, accurate). Not wired in this build; selecting
	// it fails fast rather than returning an empty speaker set.
	MethodExternal Method = "external"
)

// Mode is the client-requested accuracy/latency tradeoff for external
// diarization backends.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModeAccurate Mode = "accurate"
)

// ParseMode validates a client-supplied diarization_mode value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFast, ModeBalanced, ModeAccurate:
		return Mode(s), nil
	case "":
		return ModeBalanced, nil
	}
	return "", fmt.Errorf("unknown diarization_mode %q", s)
}

// Params carries the client's diarization request fields.
type Params struct {
	Enabled     bool
	Mode        Mode
	MinSpeakers int // lower-bound hint; only external backends could honor it
	MaxSpeakers int
	UseTurns    bool // use_tinydiarize
}

// TranscriptSegment is a timestamped span of transcribed text.
type TranscriptSegment struct {
	Start float64
	End   float64
	Text  string
}

// SpeakerSegment is a span attributed to one speaker by a diarization method.
type SpeakerSegment struct {
	Start      float64
	End        float64
	Speaker    string
	Confidence float64 // 0 when the method doesn't score
}

// AlignedSegment is a transcript segment with its best-match speaker.
type AlignedSegment struct {
	Start             float64
	End               float64
	Text              string
	Speaker           string
	Confidence        float64 // overlap / transcript duration
	SpeakerConfidence float64 // the matched speaker segment's own score
}

// Duration returns the segment length in seconds.
func (s TranscriptSegment) Duration() float64 { return s.End - s.Start }
