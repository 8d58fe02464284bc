// Package coordinator runs the transcription pipeline on behalf of connection
// handlers. Any number of connections may call Transcribe concurrently; all
// model-state access goes through the model store's owning goroutine, so the
// coordinator itself holds no model state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scribehost/scribed/internal/audio"
	"github.com/scribehost/scribed/internal/diarize"
	"github.com/scribehost/scribed/internal/metrics"
	"github.com/scribehost/scribed/internal/model"
	"github.com/scribehost/scribed/internal/transcribe"
)

// Request is one transcription job as extracted from the upload.
type Request struct {
	Audio    []byte
	Filename string
	Diarize  diarize.Params
}

// Segment is one span of the finished transcript. Speaker is empty when
// diarization was not performed.
type Segment struct {
	Speaker           string
	Start             float64
	End               float64
	Text              string
	Confidence        float64
	SpeakerConfidence float64
}

// Response is the finished transcription.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds
	Model    string
	Segments []Segment

	Diarized          bool
	TextWithSpeakers  string
	Speakers          []string
	NumSpeakers       int
	DiarizationMethod string

	ProcessingTime    float64 // seconds, whole pipeline
	TranscriptionTime float64
	DiarizationTime   float64
	EnhancementTime   float64

	Replacements int
	Enhanced     bool
	EnhancedText string
}

// Coordinator owns the transcription pipeline: temp-file handling,
// preprocessing, engine invocation, word replacement, enhancement, and
// speaker diarization.
type Coordinator struct {
	models   *model.Store
	provider transcribe.Provider
	replacer *transcribe.Replacer
	enhancer *transcribe.Enhancer
	log      zerolog.Logger

	served  atomic.Int64
	totalMs atomic.Int64
}

// New creates a coordinator. replacer and enhancer may be disabled but not nil.
func New(models *model.Store, provider transcribe.Provider, replacer *transcribe.Replacer, enhancer *transcribe.Enhancer, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		models:   models,
		provider: provider,
		replacer: replacer,
		enhancer: enhancer,
		log:      log.With().Str("component", "coordinator").Logger(),
	}
}

// RequestsServed returns the number of successfully completed transcriptions.
func (c *Coordinator) RequestsServed() int64 { return c.served.Load() }

// AverageProcessingMs returns the mean pipeline time per served request.
func (c *Coordinator) AverageProcessingMs() float64 {
	served := c.served.Load()
	if served == 0 {
		return 0
	}
	return float64(c.totalMs.Load()) / float64(served)
}

// ReplacementEnabled reports whether word replacement rules are loaded.
func (c *Coordinator) ReplacementEnabled() bool { return c.replacer.Enabled() }

// EnhancementEnabled reports whether an enhancement endpoint is configured.
func (c *Coordinator) EnhancementEnabled() bool { return c.enhancer.Enabled() }

// Transcribe runs the full pipeline. Errors are *Error values carrying a
// client-facing code; context expiry surfaces as CodeTimeout.
func (c *Coordinator) Transcribe(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.run(ctx, req)
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	elapsed := time.Since(start)
	resp.ProcessingTime = elapsed.Seconds()
	c.served.Add(1)
	c.totalMs.Add(elapsed.Milliseconds())
	metrics.TranscriptionsTotal.WithLabelValues("success").Inc()
	metrics.TranscriptionDuration.Observe(elapsed.Seconds())

	c.log.Info().
		Str("model", resp.Model).
		Float64("audio_seconds", resp.Duration).
		Dur("elapsed", elapsed).
		Bool("diarized", resp.Diarized).
		Msg("transcription complete")
	return resp, nil
}

func (c *Coordinator) run(ctx context.Context, req Request) (*Response, error) {
	if len(req.Audio) == 0 {
		return nil, newError(CodeInvalidRequest, "empty audio payload", nil)
	}

	m, err := c.models.EnsureLoaded(ctx)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNoModel):
			return nil, newError(CodeNoModel, "no transcription model selected", err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, newError(CodeTimeout, "model load exceeded the time limit", err)
		default:
			return nil, newError(CodeModelLoadFailed, "transcription model failed to load", err)
		}
	}

	format := audio.Classify(req.Audio)
	info, probeErr := audio.Probe(req.Audio)
	if probeErr != nil {
		c.log.Warn().Err(probeErr).Str("filename", req.Filename).Msg("audio probe failed")
		info = &audio.Info{Format: format}
	}

	// The upload lives on disk only for the duration of this request, under
	// a non-guessable name.
	tmpPath := filepath.Join(os.TempDir(), "scribed-"+uuid.NewString()+format.Ext())
	if err := os.WriteFile(tmpPath, req.Audio, 0o600); err != nil {
		return nil, newError(CodeTranscriptionFailed, "could not stage audio for processing", err)
	}
	defer os.Remove(tmpPath)

	wavPath, cleanup, err := transcribe.Preprocess(ctx, tmpPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(CodeTimeout, "processing exceeded the time limit", err)
		}
		return nil, newError(CodeTranscriptionFailed, "audio preprocessing failed", err)
	}
	defer cleanup()

	tStart := time.Now()
	result, err := c.provider.Transcribe(ctx, wavPath, m)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(CodeTimeout, "processing exceeded the time limit", err)
		}
		return nil, newError(CodeTranscriptionFailed, "transcription engine failed", err)
	}
	transcriptionTime := time.Since(tStart)

	text, replaced := c.replacer.Apply(result.Text)
	transcript := make([]diarize.TranscriptSegment, 0, len(result.Segments))
	turnAfter := make([]bool, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segText, n := c.replacer.Apply(seg.Text)
		replaced += n
		transcript = append(transcript, diarize.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  segText,
		})
		turnAfter = append(turnAfter, seg.SpeakerTurnNext)
	}

	resp := &Response{
		Text:              text,
		Language:          result.Language,
		Duration:          result.Duration,
		Model:             m.ID,
		TranscriptionTime: transcriptionTime.Seconds(),
		Replacements:      replaced,
	}

	if c.enhancer.Enabled() {
		eStart := time.Now()
		out, enhErr := c.enhancer.Enhance(ctx, text)
		resp.EnhancementTime = time.Since(eStart).Seconds()
		if enhErr != nil {
			c.log.Warn().Err(enhErr).Msg("enhancement failed, keeping raw transcript")
		} else {
			resp.Enhanced = true
			resp.EnhancedText = out
		}
	}
	if info.Duration > 0 {
		resp.Duration = info.Duration
	}
	for _, ts := range transcript {
		resp.Segments = append(resp.Segments, Segment{Start: ts.Start, End: ts.End, Text: ts.Text})
	}

	if req.Diarize.Enabled {
		if err := c.diarize(req, m, info, transcript, turnAfter, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// diarize attributes speakers to the finished transcript. An unavailable
// backend fails the request; a runtime failure of an available method
// degrades to the plain transcript.
func (c *Coordinator) diarize(req Request, m model.Info, info *audio.Info, transcript []diarize.TranscriptSegment, turnAfter []bool, resp *Response) error {
	dStart := time.Now()

	method, err := pickMethod(req.Diarize, m, info)
	if err != nil {
		return err
	}

	speakers, err := c.speakerSegments(method, req, transcript, turnAfter)
	if err != nil {
		if errors.Is(err, diarize.ErrNotImplemented) {
			metrics.DiarizationsTotal.WithLabelValues(string(method), "error").Inc()
			return newError(CodeDiarizationNotImplemented,
				fmt.Sprintf("diarization mode %q requires an external backend that is not available", req.Diarize.Mode), err)
		}
		c.log.Warn().Err(err).Str("method", string(method)).Msg("diarization failed, returning plain transcript")
		metrics.DiarizationsTotal.WithLabelValues(string(method), "degraded").Inc()
		resp.DiarizationTime = time.Since(dStart).Seconds()
		return nil
	}

	aligned := diarize.Align(transcript, speakers, method)
	resp.Diarized = true
	resp.TextWithSpeakers = aligned.BlockText()
	resp.Speakers = aligned.Speakers
	resp.NumSpeakers = aligned.NumSpeakers
	resp.DiarizationMethod = string(method)
	resp.DiarizationTime = time.Since(dStart).Seconds()

	resp.Segments = resp.Segments[:0]
	for _, s := range aligned.Segments {
		resp.Segments = append(resp.Segments, Segment{
			Speaker:           s.Speaker,
			Start:             s.Start,
			End:               s.End,
			Text:              s.Text,
			Confidence:        s.Confidence,
			SpeakerConfidence: s.SpeakerConfidence,
		})
	}
	metrics.DiarizationsTotal.WithLabelValues(string(method), "success").Inc()
	return nil
}

// pickMethod selects the diarization method for this request: native
// speaker-turn flags when asked for and supported, channel separation for
// multi-channel audio, an external backend otherwise.
func pickMethod(p diarize.Params, m model.Info, info *audio.Info) (diarize.Method, error) {
	if p.UseTurns {
		if !m.SupportsSpeakerTurns() {
			return "", newError(CodeDiarizationUnavailable,
				fmt.Sprintf("model %s has no native speaker-turn support", m.ID), nil)
		}
		return diarize.MethodSpeakerTurns, nil
	}
	if info != nil && info.Channels >= 2 {
		return diarize.MethodChannel, nil
	}
	return diarize.MethodExternal, nil
}

func (c *Coordinator) speakerSegments(method diarize.Method, req Request, transcript []diarize.TranscriptSegment, turnAfter []bool) ([]diarize.SpeakerSegment, error) {
	switch method {
	case diarize.MethodSpeakerTurns:
		return diarize.FromSpeakerTurns(transcript, turnAfter, req.Diarize.MaxSpeakers)
	case diarize.MethodChannel:
		channels, rate, err := audio.DecodePCM(req.Audio)
		if err != nil {
			return nil, err
		}
		return diarize.FromChannels(channels, rate)
	default:
		return diarize.External(req.Diarize.Mode)
	}
}
