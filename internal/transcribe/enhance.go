package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const enhancePrompt = "Clean up this transcript: fix punctuation and " +
	"capitalization, remove filler words. Return only the corrected text."

// Enhancer post-processes transcripts through an OpenAI-compatible chat
// completion endpoint. Failures are reported but never fatal; callers keep
// the raw transcript when enhancement is down.
type Enhancer struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

// NewEnhancer creates an enhancement client. An empty url disables it.
func NewEnhancer(url, model, apiKey string) *Enhancer {
	return &Enhancer{
		url:    url,
		model:  model,
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Enabled reports whether an endpoint is configured.
func (e *Enhancer) Enabled() bool { return e.url != "" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Enhance returns the cleaned-up transcript. The original text is returned
// alongside any error so callers can degrade.
func (e *Enhancer) Enhance(ctx context.Context, text string) (string, error) {
	if !e.Enabled() || strings.TrimSpace(text) == "" {
		return text, nil
	}

	payload, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: enhancePrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return text, fmt.Errorf("encode enhance request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return text, fmt.Errorf("create enhance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return text, fmt.Errorf("enhance request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return text, fmt.Errorf("read enhance response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return text, fmt.Errorf("enhance API error (status %d): %s", resp.StatusCode, firstLine(body))
	}

	var doc chatResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return text, fmt.Errorf("decode enhance response: %w", err)
	}
	if len(doc.Choices) == 0 {
		return text, fmt.Errorf("enhance response had no choices")
	}
	out := strings.TrimSpace(doc.Choices[0].Message.Content)
	if out == "" {
		return text, fmt.Errorf("enhance response was empty")
	}
	return out, nil
}
