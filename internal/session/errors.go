package session

import "errors"

var (
	// ErrInvalidInput is returned for an empty user message.
	ErrInvalidInput = errors.New("user message must not be empty")
	// ErrProfileNotFound is returned when no profile exists for the
	// requested character name, or on reset when no session is live.
	ErrProfileNotFound = errors.New("character profile not found")
	// ErrSessionBusy is returned when a call arrives while another
	// model call is already in flight for the same session. Callers
	// retry after backoff; sends are never queued.
	ErrSessionBusy = errors.New("session busy: a model call is in flight")
)

// GatewayError wraps an upstream model failure. The session performs
// no retries; the cause is surfaced as-is for the caller's policy.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return "model gateway: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
