package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// Response is a buffered HTTP response. Content-Length is always computed
// from the actual body at write time, never declared by handlers.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// NewResponse builds a response with a content type and body.
func NewResponse(status int, contentType string, body []byte) *Response {
	return &Response{
		Status:  status,
		Headers: map[string]string{"Content-Type": contentType},
		Body:    body,
	}
}

// JSON marshals v as the response body. A marshal failure degrades to a
// canned 500 so every terminal state still produces one well-formed response.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return NewResponse(http.StatusInternalServerError, "application/json",
			[]byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"response encoding failed"}}`))
	}
	return NewResponse(status, "application/json", body)
}

// APIError is the structured error envelope carried by every failure
// response: {"success":false,"error":{"code":…,"message":…}}.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

// Error builds a failure response in the standard envelope.
func Error(status int, code, message string) *Response {
	return JSON(status, errorEnvelope{Success: false, Error: APIError{Code: code, Message: message}})
}

// Protocol-level error codes owned by the connection handler and router.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeNotFound        = "NOT_FOUND"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeTimeout         = "TIMEOUT"
)

// write serializes the status line, headers, and body. Every response gets
// permissive CORS and an exact Content-Length; connections are not reused.
func (r *Response) write(w io.Writer) error {
	text := http.StatusText(r.Status)
	if text == "" {
		text = "Status"
	}
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", r.Status, text); err != nil {
		return err
	}

	headers := map[string]string{
		"Content-Length":               fmt.Sprintf("%d", len(r.Body)),
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
		"Connection":                   "close",
	}
	for k, v := range r.Headers {
		headers[k] = v
	}

	// Deterministic header order keeps wire output stable for tests.
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, headers[k]); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	_, err := w.Write(r.Body)
	return err
}
