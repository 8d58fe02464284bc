// Package api implements the HTTP surface of the transcription service:
// request decoding, error-code mapping, and the response shapes the desktop
// client expects.
package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribehost/scribed/internal/coordinator"
	"github.com/scribehost/scribed/internal/diarize"
	"github.com/scribehost/scribed/internal/formdata"
	"github.com/scribehost/scribed/internal/httpserver"
	"github.com/scribehost/scribed/internal/model"
)

// API-level error codes; protocol-level codes live in httpserver.
const (
	CodeMissingFile        = "MISSING_FILE"
	CodeMalformedMultipart = "MALFORMED_MULTIPART"
)

// ServerInfo is the slice of server state the health endpoint reports.
type ServerInfo interface {
	Running() bool
	Port() int
}

// Handlers wires the route table to the transcription pipeline.
type Handlers struct {
	coord   *coordinator.Coordinator
	models  *model.Store
	version string
	started time.Time
	log     zerolog.Logger

	srv ServerInfo
}

// New creates the handler set. BindServer must be called before the first
// request so the health endpoint can report listener state.
func New(coord *coordinator.Coordinator, models *model.Store, version string, log zerolog.Logger) *Handlers {
	return &Handlers{
		coord:   coord,
		models:  models,
		version: version,
		started: time.Now(),
		log:     log.With().Str("component", "api").Logger(),
	}
}

// BindServer hands the handlers a reference to the running server. The server
// needs the router (and thus the handlers) to start, so this link is set
// after construction.
func (h *Handlers) BindServer(srv ServerInfo) { h.srv = srv }

// Register installs all routes. The transcribe route uses the large-upload
// connection policy.
func (h *Handlers) Register(rt *httpserver.Router) {
	rt.Handle(http.MethodGet, "/health", h.Health)
	rt.HandleLarge(http.MethodPost, "/api/transcribe", h.Transcribe)
}

type healthSystem struct {
	Platform       string  `json:"platform"`
	OSVersion      string  `json:"osVersion"`
	ProcessorCount int     `json:"processorCount"`
	MemoryMB       uint64  `json:"memoryMB"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
}

type healthAPI struct {
	Endpoint            string  `json:"endpoint"`
	Port                int     `json:"port"`
	IsRunning           bool    `json:"isRunning"`
	RequestsServed      int64   `json:"requestsServed"`
	AverageProcessingMs float64 `json:"averageProcessingMs"`
}

type healthTranscription struct {
	CurrentModel           string   `json:"currentModel"`
	ModelLoaded            bool     `json:"modelLoaded"`
	AvailableModels        []string `json:"availableModels"`
	EnhancementEnabled     bool     `json:"enhancementEnabled"`
	WordReplacementEnabled bool     `json:"wordReplacementEnabled"`
}

type healthResponse struct {
	Status        string              `json:"status"`
	Service       string              `json:"service"`
	Version       string              `json:"version"`
	Timestamp     string              `json:"timestamp"`
	System        healthSystem        `json:"system"`
	API           healthAPI           `json:"api"`
	Transcription healthTranscription `json:"transcription"`
	Capabilities  []string            `json:"capabilities"`
}

// Health reports service, listener, and model state.
func (h *Handlers) Health(ctx context.Context, req *httpserver.Request) *httpserver.Response {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	current, _ := h.models.Current()
	available := h.models.Available()
	if available == nil {
		available = []string{}
	}

	port := 0
	running := false
	if h.srv != nil {
		port = h.srv.Port()
		running = h.srv.Running()
	}

	caps := []string{"transcription", "diarization:channel", "diarization:tinydiarize"}
	if h.coord.EnhancementEnabled() {
		caps = append(caps, "enhancement")
	}
	if h.coord.ReplacementEnabled() {
		caps = append(caps, "word_replacement")
	}

	return httpserver.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   "scribed",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		System: healthSystem{
			Platform:       runtime.GOOS,
			OSVersion:      runtime.GOOS + "/" + runtime.GOARCH,
			ProcessorCount: runtime.NumCPU(),
			MemoryMB:       mem.Sys / (1 << 20),
			UptimeSeconds:  time.Since(h.started).Seconds(),
		},
		API: healthAPI{
			Endpoint:            "/api/transcribe",
			Port:                port,
			IsRunning:           running,
			RequestsServed:      h.coord.RequestsServed(),
			AverageProcessingMs: h.coord.AverageProcessingMs(),
		},
		Transcription: healthTranscription{
			CurrentModel:           current.ID,
			ModelLoaded:            h.models.IsLoaded(),
			AvailableModels:        available,
			EnhancementEnabled:     h.coord.EnhancementEnabled(),
			WordReplacementEnabled: h.coord.ReplacementEnabled(),
		},
		Capabilities: caps,
	})
}

type segmentJSON struct {
	Speaker           string  `json:"speaker,omitempty"`
	Start             float64 `json:"start"`
	End               float64 `json:"end"`
	Text              string  `json:"text"`
	Confidence        float64 `json:"confidence,omitempty"`
	SpeakerConfidence float64 `json:"speakerConfidence,omitempty"`
}

type transcribeMetadata struct {
	Model               string  `json:"model"`
	Language            string  `json:"language,omitempty"`
	Duration            float64 `json:"duration"`
	ProcessingTime      float64 `json:"processingTime"`
	TranscriptionTime   float64 `json:"transcriptionTime"`
	EnhancementTime     float64 `json:"enhancementTime,omitempty"`
	Enhanced            bool    `json:"enhanced"`
	ReplacementsApplied int     `json:"replacementsApplied"`
	DiarizationEnabled  bool    `json:"diarizationEnabled"`
	DiarizationMethod   string  `json:"diarizationMethod,omitempty"`
	DiarizationTime     float64 `json:"diarizationTime,omitempty"`
}

type transcribeResponse struct {
	Success          bool               `json:"success"`
	Text             string             `json:"text"`
	EnhancedText     string             `json:"enhancedText,omitempty"`
	TextWithSpeakers string             `json:"textWithSpeakers,omitempty"`
	Segments         []segmentJSON      `json:"segments,omitempty"`
	Speakers         []string           `json:"speakers,omitempty"`
	NumSpeakers      int                `json:"numSpeakers,omitempty"`
	Metadata         transcribeMetadata `json:"metadata"`
}

// Transcribe decodes the multipart upload, runs the pipeline, and shapes the
// response.
func (h *Handlers) Transcribe(ctx context.Context, req *httpserver.Request) *httpserver.Response {
	boundary, ok := req.MultipartBoundary()
	if !ok || boundary == "" {
		return httpserver.Error(http.StatusBadRequest, CodeMalformedMultipart,
			"request body must be multipart/form-data with a boundary")
	}

	form, err := formdata.Extract(req.Body, boundary)
	if err != nil {
		switch {
		case errors.Is(err, formdata.ErrNoFilePart):
			return httpserver.Error(http.StatusBadRequest, CodeMissingFile, "audio file part is required")
		default:
			return httpserver.Error(http.StatusBadRequest, CodeMalformedMultipart, "multipart body could not be parsed")
		}
	}

	params, err := diarizeParams(form)
	if err != nil {
		return httpserver.Error(http.StatusBadRequest, httpserver.CodeInvalidRequest, err.Error())
	}

	resp, err := h.coord.Transcribe(ctx, coordinator.Request{
		Audio:    form.File,
		Filename: form.Filename,
		Diarize:  params,
	})
	if err != nil {
		return h.errorResponse(err)
	}

	out := transcribeResponse{
		Success:          true,
		Text:             resp.Text,
		EnhancedText:     resp.EnhancedText,
		TextWithSpeakers: resp.TextWithSpeakers,
		Speakers:         resp.Speakers,
		NumSpeakers:      resp.NumSpeakers,
		Metadata: transcribeMetadata{
			Model:               resp.Model,
			Language:            resp.Language,
			Duration:            resp.Duration,
			ProcessingTime:      resp.ProcessingTime,
			TranscriptionTime:   resp.TranscriptionTime,
			EnhancementTime:     resp.EnhancementTime,
			Enhanced:            resp.Enhanced,
			ReplacementsApplied: resp.Replacements,
			DiarizationEnabled:  resp.Diarized,
			DiarizationMethod:   resp.DiarizationMethod,
			DiarizationTime:     resp.DiarizationTime,
		},
	}
	if resp.Diarized {
		for _, s := range resp.Segments {
			out.Segments = append(out.Segments, segmentJSON{
				Speaker:           s.Speaker,
				Start:             s.Start,
				End:               s.End,
				Text:              s.Text,
				Confidence:        s.Confidence,
				SpeakerConfidence: s.SpeakerConfidence,
			})
		}
	}
	return httpserver.JSON(http.StatusOK, out)
}

// errorResponse maps pipeline error codes onto HTTP statuses.
func (h *Handlers) errorResponse(err error) *httpserver.Response {
	var ce *coordinator.Error
	if !errors.As(err, &ce) {
		h.log.Error().Err(err).Msg("pipeline failed without a coded error")
		return httpserver.Error(http.StatusInternalServerError, httpserver.CodeInternalError, "internal server error")
	}

	status := http.StatusInternalServerError
	switch ce.Code {
	case coordinator.CodeInvalidRequest, coordinator.CodeDiarizationUnavailable:
		status = http.StatusBadRequest
	case coordinator.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	h.log.Error().Err(err).Str("code", ce.Code).Msg("transcription failed")
	return httpserver.Error(status, ce.Code, ce.Message)
}

// diarizeParams pulls the diarization form fields out of the upload.
func diarizeParams(form *formdata.Form) (diarize.Params, error) {
	var p diarize.Params
	p.Enabled = parseBool(form.Fields["enable_diarization"])
	p.UseTurns = parseBool(form.Fields["use_tinydiarize"])

	mode, err := diarize.ParseMode(form.Fields["diarization_mode"])
	if err != nil {
		return p, err
	}
	p.Mode = mode

	if p.MinSpeakers, err = parseSpeakers(form.Fields["min_speakers"], "min_speakers"); err != nil {
		return p, err
	}
	if p.MaxSpeakers, err = parseSpeakers(form.Fields["max_speakers"], "max_speakers"); err != nil {
		return p, err
	}
	return p, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func parseSpeakers(s, field string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, &fieldError{field: field, value: s}
	}
	return n, nil
}

type fieldError struct {
	field string
	value string
}

func (e *fieldError) Error() string {
	return "invalid value " + strconv.Quote(e.value) + " for " + e.field
}
