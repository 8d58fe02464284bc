package audio

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// Info holds metadata pulled from an audio payload without full decoding.
type Info struct {
	Format     Format
	Duration   float64 // seconds; 0 when the container doesn't carry it
	SampleRate int
	Channels   int
}

// Probe extracts metadata from an audio payload. Duration is exact for WAV
// and zero for compressed containers, where the transcription engine's own
// reported duration is authoritative.
func Probe(data []byte) (*Info, error) {
	format := Classify(data)
	info := &Info{Format: format}

	if format != FormatWAV {
		return info, nil
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("probe: RIFF magic present but wav decode failed")
	}
	dur, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("probe: wav duration: %w", err)
	}
	info.Duration = dur.Seconds()
	info.SampleRate = int(dec.SampleRate)
	info.Channels = int(dec.NumChans)
	return info, nil
}

// DecodePCM decodes a WAV payload into per-channel sample slices, used by
// channel-based speaker separation. Returns the sample rate alongside.
func DecodePCM(data []byte) ([][]float64, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("decode pcm: not a valid wav payload")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("decode pcm: missing format chunk")
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	scale := float64(int(1) << (buf.SourceBitDepth - 1))
	if buf.SourceBitDepth == 0 {
		scale = 1 << 15
	}

	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out[c][i] = float64(buf.Data[i*channels+c]) / scale
		}
	}
	return out, buf.Format.SampleRate, nil
}
