package diarize

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestAlignFullContainment(t *testing.T) {
	transcript := []TranscriptSegment{{Start: 1.0, End: 2.0, Text: "hello there"}}
	speakers := []SpeakerSegment{
		{Start: 0.0, End: 5.0, Speaker: "SPEAKER_00", Confidence: 0.9},
	}

	r := Align(transcript, speakers, MethodChannel)
	if len(r.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(r.Segments))
	}
	s := r.Segments[0]
	if s.Speaker != "SPEAKER_00" {
		t.Errorf("speaker = %q", s.Speaker)
	}
	if math.Abs(s.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %f, want 1.0 for full containment", s.Confidence)
	}
	if s.SpeakerConfidence != 0.9 {
		t.Errorf("speaker confidence = %f, want 0.9", s.SpeakerConfidence)
	}
}

func TestAlignSpanningTwoSpeakers(t *testing.T) {
	// Transcript 0..4 spans SPEAKER_00 for 1s (d1) and SPEAKER_01 for 3s (d2).
	// Larger overlap wins with confidence max(d1,d2)/(d1+d2).
	transcript := []TranscriptSegment{{Start: 0.0, End: 4.0, Text: "spanning"}}
	speakers := []SpeakerSegment{
		{Start: 0.0, End: 1.0, Speaker: "SPEAKER_00"},
		{Start: 1.0, End: 4.0, Speaker: "SPEAKER_01"},
	}

	r := Align(transcript, speakers, MethodChannel)
	s := r.Segments[0]
	if s.Speaker != "SPEAKER_01" {
		t.Errorf("speaker = %q, want the larger-overlap SPEAKER_01", s.Speaker)
	}
	if math.Abs(s.Confidence-3.0/4.0) > 1e-9 {
		t.Errorf("confidence = %f, want 0.75", s.Confidence)
	}
}

func TestAlignNoOverlap(t *testing.T) {
	transcript := []TranscriptSegment{{Start: 10.0, End: 11.0, Text: "orphan"}}
	speakers := []SpeakerSegment{{Start: 0.0, End: 5.0, Speaker: "SPEAKER_00"}}

	r := Align(transcript, speakers, MethodChannel)
	s := r.Segments[0]
	if s.Speaker != UnknownSpeaker {
		t.Errorf("speaker = %q, want %s", s.Speaker, UnknownSpeaker)
	}
	if s.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", s.Confidence)
	}
	if r.NumSpeakers != 0 {
		t.Errorf("unknown label must not count as a detected speaker, got %d", r.NumSpeakers)
	}
}

func TestAlignMergeSmallGap(t *testing.T) {
	transcript := []TranscriptSegment{
		{Start: 0.0, End: 1.0, Text: "first part"},
		{Start: 1.5, End: 2.5, Text: "second part"},
	}
	speakers := []SpeakerSegment{{Start: 0.0, End: 3.0, Speaker: "SPEAKER_00", Confidence: 0.8}}

	r := Align(transcript, speakers, MethodChannel)
	if len(r.Segments) != 1 {
		t.Fatalf("gap 0.5s same speaker: segments = %d, want 1 merged", len(r.Segments))
	}
	s := r.Segments[0]
	if s.Text != "first part second part" {
		t.Errorf("merged text = %q", s.Text)
	}
	if s.Start != 0.0 || s.End != 2.5 {
		t.Errorf("merged span = [%f,%f], want [0,2.5]", s.Start, s.End)
	}
}

func TestAlignNoMergeLargeGap(t *testing.T) {
	transcript := []TranscriptSegment{
		{Start: 0.0, End: 1.0, Text: "first"},
		{Start: 2.5, End: 3.5, Text: "second"},
	}
	speakers := []SpeakerSegment{{Start: 0.0, End: 4.0, Speaker: "SPEAKER_00"}}

	r := Align(transcript, speakers, MethodChannel)
	if len(r.Segments) != 2 {
		t.Fatalf("gap 1.5s: segments = %d, want 2 unmerged", len(r.Segments))
	}
}

func TestAlignNoMergeDifferentSpeakers(t *testing.T) {
	transcript := []TranscriptSegment{
		{Start: 0.0, End: 1.0, Text: "one"},
		{Start: 1.1, End: 2.0, Text: "two"},
	}
	speakers := []SpeakerSegment{
		{Start: 0.0, End: 1.0, Speaker: "SPEAKER_00"},
		{Start: 1.0, End: 2.0, Speaker: "SPEAKER_01"},
	}

	r := Align(transcript, speakers, MethodChannel)
	if len(r.Segments) != 2 {
		t.Fatalf("different speakers must not merge, got %d segments", len(r.Segments))
	}
	if r.NumSpeakers != 2 {
		t.Errorf("num speakers = %d, want 2", r.NumSpeakers)
	}
}

func TestAlignMergeTakesMinConfidence(t *testing.T) {
	transcript := []TranscriptSegment{
		{Start: 0.0, End: 2.0, Text: "fully inside"},
		{Start: 2.0, End: 4.0, Text: "half outside"},
	}
	speakers := []SpeakerSegment{{Start: 0.0, End: 3.0, Speaker: "SPEAKER_00"}}

	r := Align(transcript, speakers, MethodChannel)
	if len(r.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(r.Segments))
	}
	if math.Abs(r.Segments[0].Confidence-0.5) > 1e-9 {
		t.Errorf("merged confidence = %f, want min(1.0, 0.5)", r.Segments[0].Confidence)
	}
}

func TestAlignPreservesOrder(t *testing.T) {
	transcript := []TranscriptSegment{
		{Start: 0.0, End: 1.0, Text: "a"},
		{Start: 2.5, End: 3.0, Text: "b"},
		{Start: 5.0, End: 6.0, Text: "c"},
	}
	speakers := []SpeakerSegment{
		{Start: 0.0, End: 1.5, Speaker: "SPEAKER_00"},
		{Start: 2.0, End: 4.0, Speaker: "SPEAKER_01"},
		{Start: 4.5, End: 6.5, Speaker: "SPEAKER_00"},
	}

	r := Align(transcript, speakers, MethodChannel)
	for i := 1; i < len(r.Segments); i++ {
		if r.Segments[i].Start < r.Segments[i-1].Start {
			t.Fatalf("segment %d starts before segment %d", i, i-1)
		}
	}
}

func TestBlockText(t *testing.T) {
	r := &Result{Segments: []AlignedSegment{
		{Speaker: "SPEAKER_00", Text: "hello"},
		{Speaker: "SPEAKER_00", Text: "again"},
		{Speaker: "SPEAKER_01", Text: "hi"},
	}}

	got := r.BlockText()
	want := "\n[SPEAKER_00]:\n hello\n again\n\n[SPEAKER_01]:\n hi\n"
	if got != want {
		t.Errorf("block text:\ngot  %q\nwant %q", got, want)
	}
}

func TestInlineText(t *testing.T) {
	r := &Result{Segments: []AlignedSegment{
		{Speaker: "SPEAKER_00", Text: "hello"},
		{Speaker: "SPEAKER_01", Text: "hi"},
	}}
	got := r.InlineText()
	if !strings.Contains(got, "[SPEAKER_00] hello") || !strings.Contains(got, "[SPEAKER_01] hi") {
		t.Errorf("inline text = %q", got)
	}
}

func TestFromSpeakerTurns(t *testing.T) {
	transcript := []TranscriptSegment{
		{Start: 0, End: 1, Text: "a"},
		{Start: 1, End: 2, Text: "b"},
		{Start: 2, End: 3, Text: "c"},
	}
	segments, err := FromSpeakerTurns(transcript, []bool{true, false, false}, 0)
	if err != nil {
		t.Fatalf("from turns: %v", err)
	}
	if segments[0].Speaker != "SPEAKER_00" || segments[1].Speaker != "SPEAKER_01" || segments[2].Speaker != "SPEAKER_01" {
		t.Errorf("speakers = %s %s %s", segments[0].Speaker, segments[1].Speaker, segments[2].Speaker)
	}
}

func TestFromSpeakerTurnsNoFlags(t *testing.T) {
	transcript := []TranscriptSegment{{Start: 0, End: 1}, {Start: 1, End: 2}}
	_, err := FromSpeakerTurns(transcript, []bool{false, false}, 0)
	if !errors.Is(err, ErrNoTurnFlags) {
		t.Fatalf("err = %v, want ErrNoTurnFlags", err)
	}
}

func TestExternalFailsFast(t *testing.T) {
	_, err := External(ModeBalanced)
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("err = %v, want ErrNotImplemented", err)
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("warp-speed"); err == nil {
		t.Error("expected error for unknown mode")
	}
	m, err := ParseMode("")
	if err != nil || m != ModeBalanced {
		t.Errorf("default mode = %q, %v", m, err)
	}
}
