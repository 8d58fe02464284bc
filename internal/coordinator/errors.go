package coordinator

import "fmt"

// Error codes surfaced to API clients.
const (
	CodeNoModel                   = "NO_MODEL"
	CodeModelLoadFailed           = "MODEL_LOAD_FAILED"
	CodeTranscriptionFailed       = "TRANSCRIPTION_FAILED"
	CodeTimeout                   = "TIMEOUT"
	CodeDiarizationNotImplemented = "DIARIZATION_NOT_IMPLEMENTED"
	CodeDiarizationUnavailable    = "DIARIZATION_UNAVAILABLE"
	CodeInvalidRequest            = "INVALID_REQUEST"
)

// Error is a transcription failure with a client-facing code. The wrapped
// cause stays server-side; Message is safe to return to clients.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
