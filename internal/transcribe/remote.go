package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/scribehost/scribed/internal/model"
)

// Remote calls an OpenAI-compatible /v1/audio/transcriptions endpoint. It is
// the fallback when no local whisper.cpp binary is configured.
type Remote struct {
	url    string
	client *http.Client
}

// remoteResponse is the verbose_json document from the endpoint.
type remoteResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// NewRemote creates a remote transcription client. The HTTP client carries no
// timeout of its own; the caller's context bounds each request.
func NewRemote(url string) *Remote {
	return &Remote{
		url:    url,
		client: &http.Client{},
	}
}

func (r *Remote) Name() string { return "remote" }

// Transcribe uploads the audio as multipart/form-data and asks for
// verbose_json so segment timestamps come back.
func (r *Remote) Transcribe(ctx context.Context, audioPath string, m model.Info) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if m.ID != "" {
		w.WriteField("model", m.ID)
	}
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "segment")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, firstLine(body))
	}

	var doc remoteResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	res := &Result{
		Text:     strings.TrimSpace(doc.Text),
		Language: doc.Language,
		Duration: doc.Duration,
	}
	for _, seg := range doc.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		res.Segments = append(res.Segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	if res.Duration == 0 {
		if n := len(res.Segments); n > 0 {
			res.Duration = res.Segments[n-1].End
		}
	}
	return res, nil
}
