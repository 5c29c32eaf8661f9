package session

import "errors"

var (
	// ErrSessionExists means the id is already registered with a live,
	// connected transport.
	ErrSessionExists = errors.New("session already exists")

	ErrSessionNotFound = errors.New("session not found")

	// ErrNotConnected means the operation needs an authorized session.
	ErrNotConnected = errors.New("session not connected")

	// ErrPhoneRequired means code-flow auth was requested without a
	// phone number.
	ErrPhoneRequired = errors.New("phone number required")

	// ErrInvalidCode is recoverable: the caller may retry with a new
	// code while the session stays in awaiting_code.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrPasswordNeeded is recoverable: the caller repeats verify with
	// the 2FA password.
	ErrPasswordNeeded = errors.New("2FA password required")

	// ErrAuthTimeout means the pending auth state expired; the caller
	// restarts the flow.
	ErrAuthTimeout = errors.New("authentication window expired")

	// ErrWrongAuthMethod means the operation does not apply to the
	// session's auth method, e.g. requesting a QR for a code session.
	ErrWrongAuthMethod = errors.New("operation not valid for this auth method")
)
