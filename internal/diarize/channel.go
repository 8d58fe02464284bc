package diarize

import (
	"errors"
	"fmt"
	"math"
)

// ErrChannelUnavailable means channel-based separation cannot run on this
// input (mono audio, or PCM unavailable).
var ErrChannelUnavailable = errors.New("channel-based diarization requires multi-channel pcm audio")

// channelWindow is the analysis window for per-channel energy comparison.
const channelWindow = 0.25 // seconds

// silenceFloor is the RMS below which a window counts as silence on every
// channel and produces no speaker segment.
const silenceFloor = 0.01

// FromChannels produces speaker segments from multi-channel PCM, one speaker
// per channel: each window is attributed to the channel with dominant RMS
// energy, and consecutive same-channel windows coalesce into segments.
// Confidence is the dominant channel's share of total window energy.
func FromChannels(channels [][]float64, sampleRate int) ([]SpeakerSegment, error) {
	if len(channels) < 2 {
		return nil, ErrChannelUnavailable
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	frames := len(channels[0])
	win := int(channelWindow * float64(sampleRate))
	if win < 1 {
		win = 1
	}

	var segments []SpeakerSegment
	var cur *SpeakerSegment

	for off := 0; off < frames; off += win {
		end := off + win
		if end > frames {
			end = frames
		}

		dominant, share := dominantChannel(channels, off, end)
		if dominant < 0 {
			// Silent window closes any open segment.
			if cur != nil {
				segments = append(segments, *cur)
				cur = nil
			}
			continue
		}

		speaker := fmt.Sprintf("SPEAKER_%02d", dominant)
		startSec := float64(off) / float64(sampleRate)
		endSec := float64(end) / float64(sampleRate)

		if cur != nil && cur.Speaker == speaker {
			cur.End = endSec
			if share < cur.Confidence {
				cur.Confidence = share
			}
			continue
		}
		if cur != nil {
			segments = append(segments, *cur)
		}
		cur = &SpeakerSegment{Start: startSec, End: endSec, Speaker: speaker, Confidence: share}
	}
	if cur != nil {
		segments = append(segments, *cur)
	}

	return segments, nil
}

// dominantChannel returns the loudest channel index over [start,end) and its
// share of the summed energy, or -1 when every channel is under the silence
// floor.
func dominantChannel(channels [][]float64, start, end int) (int, float64) {
	best := -1
	var bestRMS, total float64

	for c, samples := range channels {
		var sum float64
		for _, v := range samples[start:end] {
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(end-start))
		total += rms
		if rms > bestRMS {
			bestRMS = rms
			best = c
		}
	}

	if bestRMS < silenceFloor {
		return -1, 0
	}
	if total == 0 {
		return -1, 0
	}
	return best, bestRMS / total
}
