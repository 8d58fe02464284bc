package diarize

import (
	"errors"
	"fmt"
)

// ErrNoTurnFlags means the engine produced no speaker-turn markers, which
// happens when the selected model is not tinydiarize-capable.
var ErrNoTurnFlags = errors.New("model produced no speaker-turn flags")

// FromSpeakerTurns converts the engine's native speaker-turn flags into
// speaker segments. turnAfter[i] marks a speaker change after transcript
// segment i; labels alternate through the detected turn count, capped by
// maxSpeakers when positive.
func FromSpeakerTurns(transcript []TranscriptSegment, turnAfter []bool, maxSpeakers int) ([]SpeakerSegment, error) {
	if len(transcript) != len(turnAfter) {
		return nil, fmt.Errorf("turn flags length %d does not match %d segments", len(turnAfter), len(transcript))
	}

	anyTurn := false
	for _, t := range turnAfter {
		if t {
			anyTurn = true
			break
		}
	}
	if !anyTurn && len(transcript) > 1 {
		return nil, ErrNoTurnFlags
	}

	segments := make([]SpeakerSegment, 0, len(transcript))
	speaker := 0
	for i, ts := range transcript {
		segments = append(segments, SpeakerSegment{
			Start:      ts.Start,
			End:        ts.End,
			Speaker:    fmt.Sprintf("SPEAKER_%02d", speaker),
			Confidence: 1.0,
		})
		if turnAfter[i] {
			speaker++
			if maxSpeakers > 0 && speaker >= maxSpeakers {
				speaker = 0
			}
		}
	}
	return segments, nil
}
