package diarize

import (
	"sort"
	"strings"
)

// mergeGap is the maximum silence between two same-speaker segments that
// still reads as one utterance.
const mergeGap = 1.0 // seconds

// Result is an aligned, merged transcription with speaker attribution.
type Result struct {
	Segments    []AlignedSegment
	Speakers    []string
	NumSpeakers int
	Method      Method
}

// Align attributes each transcript segment to the speaker segment with
// maximal temporal overlap, then merges adjacent same-speaker segments
// separated by less than mergeGap. Output preserves the non-decreasing
// start-time order of the input transcript.
func Align(transcript []TranscriptSegment, speakers []SpeakerSegment, method Method) *Result {
	aligned := make([]AlignedSegment, 0, len(transcript))
	for _, ts := range transcript {
		aligned = append(aligned, attribute(ts, speakers))
	}

	merged := mergeRuns(aligned)

	return &Result{
		Segments:    merged,
		Speakers:    distinctSpeakers(merged),
		NumSpeakers: len(distinctSpeakers(merged)),
		Method:      method,
	}
}

// attribute picks the maximal-overlap speaker for one transcript segment.
// No overlap at all yields UnknownSpeaker with zero confidence.
func attribute(ts TranscriptSegment, speakers []SpeakerSegment) AlignedSegment {
	out := AlignedSegment{
		Start:   ts.Start,
		End:     ts.End,
		Text:    ts.Text,
		Speaker: UnknownSpeaker,
	}

	var bestOverlap float64
	for _, ss := range speakers {
		o := overlap(ts.Start, ts.End, ss.Start, ss.End)
		if o > bestOverlap {
			bestOverlap = o
			out.Speaker = ss.Speaker
			out.SpeakerConfidence = ss.Confidence
		}
	}

	if bestOverlap > 0 && ts.Duration() > 0 {
		out.Confidence = bestOverlap / ts.Duration()
	}
	return out
}

// overlap returns the length of the intersection of [aStart,aEnd) and
// [bStart,bEnd), never negative.
func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// mergeRuns folds segment i+1 into i when both carry the same speaker and
// the gap between them is under mergeGap. Single left-to-right scan.
func mergeRuns(segments []AlignedSegment) []AlignedSegment {
	if len(segments) == 0 {
		return segments
	}

	out := make([]AlignedSegment, 0, len(segments))
	cur := segments[0]
	for _, next := range segments[1:] {
		if next.Speaker == cur.Speaker && next.Start-cur.End < mergeGap {
			cur.End = next.End
			cur.Text = strings.TrimSpace(cur.Text) + " " + strings.TrimSpace(next.Text)
			if next.Confidence < cur.Confidence {
				cur.Confidence = next.Confidence
			}
			if next.SpeakerConfidence < cur.SpeakerConfidence {
				cur.SpeakerConfidence = next.SpeakerConfidence
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// distinctSpeakers returns the sorted set of detected speakers. The unknown
// label is not a detection and is excluded.
func distinctSpeakers(segments []AlignedSegment) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range segments {
		if s.Speaker == UnknownSpeaker {
			continue
		}
		if !seen[s.Speaker] {
			seen[s.Speaker] = true
			out = append(out, s.Speaker)
		}
	}
	sort.Strings(out)
	return out
}

// BlockText renders the transcription grouped by speaker blocks:
//
//	[SPEAKER_00]:
//	 first utterance...
func (r *Result) BlockText() string {
	var b strings.Builder
	var lastSpeaker string
	for _, s := range r.Segments {
		if s.Speaker != lastSpeaker {
			b.WriteString("\n[" + s.Speaker + "]:\n")
			lastSpeaker = s.Speaker
		}
		b.WriteString(" " + strings.TrimSpace(s.Text) + "\n")
	}
	return b.String()
}

// InlineText renders every segment inline with its speaker label.
func (r *Result) InlineText() string {
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		parts = append(parts, "["+s.Speaker+"] "+strings.TrimSpace(s.Text))
	}
	return strings.Join(parts, " ")
}
