package chat

import "errors"

// Error codes for client domain errors.
const (
	ErrCodeNotConnected = "not_connected"
	ErrCodeSendFailed   = "send_failed"
	ErrCodeNoCredential = "no_credential"
)

// ErrNoCredential means no bearer token is stored. Connecting again without
// one will fail the same way, so it is never retried; a fresh credential
// requires caller action, not time.
var ErrNoCredential = errors.New("no credential available")

// ClientError wraps a code and human-readable message, optionally carrying the
// underlying cause.
type ClientError struct {
	Code    string
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func clientError(code, msg string, err error) *ClientError {
	return &ClientError{Code: code, Message: msg, Err: err}
}
