package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrProtocol covers malformed request lines and headers. Protocol errors are
// resolved inside the connection handler with a 400 and never reach handlers.
var ErrProtocol = errors.New("protocol error")

// Request is a fully framed HTTP request: headers parsed, body accumulated to
// its declared length.
type Request struct {
	Method     string
	Path       string
	Proto      string
	Headers    Headers
	Body       []byte
	RemoteAddr string
}

// Headers is a case-insensitive header map; keys are stored lowercase.
type Headers map[string]string

// Get looks up a header by name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// ContentLength returns the declared body length, or 0 when the header is
// absent (header-only request).
func (r *Request) ContentLength() (int64, error) {
	v := r.Headers.Get("Content-Length")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid Content-Length %q", ErrProtocol, v)
	}
	return n, nil
}

// MultipartBoundary extracts the boundary token from a multipart/form-data
// Content-Type header. Returns false when the request is not multipart.
func (r *Request) MultipartBoundary() (string, bool) {
	ct := r.Headers.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "multipart/form-data") {
		return "", false
	}
	for _, piece := range strings.Split(ct, ";") {
		piece = strings.TrimSpace(piece)
		if strings.HasPrefix(strings.ToLower(piece), "boundary=") {
			return strings.Trim(piece[len("boundary="):], `"`), true
		}
	}
	return "", false
}

// parseRequestHead parses everything before the CRLFCRLF terminator: the
// request line and header block.
func parseRequestHead(head []byte) (*Request, error) {
	lines := bytes.Split(head, []byte("\r\n"))
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty request head", ErrProtocol)
	}

	method, path, proto, err := parseRequestLine(string(lines[0]))
	if err != nil {
		return nil, err
	}

	headers := make(Headers, len(lines)-1)
	for _, line := range lines[1:] {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, fmt.Errorf("%w: header line without colon: %q", ErrProtocol, line)
		}
		key := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		if key == "" {
			return nil, fmt.Errorf("%w: empty header name", ErrProtocol)
		}
		headers[key] = strings.TrimSpace(string(line[colon+1:]))
	}

	return &Request{
		Method:  method,
		Path:    path,
		Proto:   proto,
		Headers: headers,
	}, nil
}

// parseRequestLine splits "METHOD /path HTTP/1.1" and validates each piece.
func parseRequestLine(line string) (method, path, proto string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: malformed request line %q", ErrProtocol, line)
	}
	method, path, proto = parts[0], parts[1], parts[2]

	if method == "" || method != strings.ToUpper(method) {
		return "", "", "", fmt.Errorf("%w: invalid method %q", ErrProtocol, method)
	}
	if !strings.HasPrefix(path, "/") && path != "*" {
		return "", "", "", fmt.Errorf("%w: invalid request target %q", ErrProtocol, path)
	}
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return "", "", "", fmt.Errorf("%w: unsupported protocol %q", ErrProtocol, proto)
	}

	// Strip any query string; the API routes on the bare path.
	if q := strings.IndexByte(path, '?'); q >= 0 {
		path = path[:q]
	}
	return method, path, proto, nil
}
