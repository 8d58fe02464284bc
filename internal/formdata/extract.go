// Package formdata extracts multipart/form-data bodies without transcoding
// the payload to text. The connection layer buffers the full body, so
// extraction is a boundary scan over bytes rather than a stream parse. A
// well-formed body with no file part and a structurally broken body are
// distinct errors, since callers report them differently.
package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoFilePart means the body was structurally valid multipart but no
	// part carried name="file" in its disposition header.
	ErrNoFilePart = errors.New("no file part in form data")

	// ErrMalformed means the body does not follow multipart framing under
	// the declared boundary.
	ErrMalformed = errors.New("malformed multipart body")
)

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// Form is the result of extracting a multipart body: the binary file payload
// and the scalar fields that accompanied it.
type Form struct {
	File            []byte
	Filename        string
	FileContentType string
	Fields          map[string]string
}

// Extract splits body into parts under the given boundary token. The part
// whose disposition carries name="file" yields the binary payload byte for
// byte; every other named part becomes a scalar string field.
func Extract(body []byte, boundary string) (*Form, error) {
	if boundary == "" {
		return nil, fmt.Errorf("%w: empty boundary", ErrMalformed)
	}

	delim := []byte("--" + boundary)
	idx := bytes.Index(body, delim)
	if idx < 0 {
		return nil, fmt.Errorf("%w: opening boundary not found", ErrMalformed)
	}

	form := &Form{Fields: make(map[string]string)}
	sawFile := false
	rest := body[idx+len(delim):]

	for {
		if bytes.HasPrefix(rest, []byte("--")) {
			// Closing delimiter.
			break
		}
		if !bytes.HasPrefix(rest, crlf) {
			return nil, fmt.Errorf("%w: boundary not followed by CRLF", ErrMalformed)
		}
		rest = rest[len(crlf):]

		headerEnd := bytes.Index(rest, crlfcrlf)
		if headerEnd < 0 {
			return nil, fmt.Errorf("%w: unterminated part headers", ErrMalformed)
		}
		name, filename, contentType, err := parsePartHeaders(rest[:headerEnd])
		if err != nil {
			return nil, err
		}

		payloadStart := headerEnd + len(crlfcrlf)
		// Payload runs to the next boundary; the CRLF before it belongs to
		// the framing, not the payload.
		sep := append(append([]byte{}, crlf...), delim...)
		next := bytes.Index(rest[payloadStart:], sep)
		if next < 0 {
			return nil, fmt.Errorf("%w: part not terminated by boundary", ErrMalformed)
		}
		payload := rest[payloadStart : payloadStart+next]
		rest = rest[payloadStart+next+len(sep):]

		if name == "file" {
			if !sawFile {
				form.File = payload
				form.Filename = filename
				form.FileContentType = contentType
				sawFile = true
			}
			continue
		}
		form.Fields[name] = string(payload)
	}

	if !sawFile {
		return nil, ErrNoFilePart
	}
	return form, nil
}

// parsePartHeaders pulls the field name, filename, and content type out of a
// part's sub-header block.
func parsePartHeaders(block []byte) (name, filename, contentType string, err error) {
	for _, line := range strings.Split(string(block), "\r\n") {
		colon := strings.Index(line, ":")
		if colon < 0 {
			return "", "", "", fmt.Errorf("%w: part header without colon: %q", ErrMalformed, line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])

		switch key {
		case "content-disposition":
			name = headerParam(value, "name")
			filename = headerParam(value, "filename")
		case "content-type":
			contentType = value
		}
	}
	if name == "" {
		return "", "", "", fmt.Errorf("%w: part disposition missing name", ErrMalformed)
	}
	return name, filename, contentType, nil
}

// headerParam extracts a quoted parameter like name="file" from a header value.
func headerParam(header, param string) string {
	for _, piece := range strings.Split(header, ";") {
		piece = strings.TrimSpace(piece)
		if !strings.HasPrefix(piece, param+"=") {
			continue
		}
		v := piece[len(param)+1:]
		return strings.Trim(v, `"`)
	}
	return ""
}
