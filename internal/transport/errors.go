package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCodeInvalid means the submitted one-time code was wrong. The
	// auth flow may retry with a new code.
	ErrCodeInvalid = errors.New("transport: invalid verification code")

	// ErrPasswordNeeded means the account has 2FA enabled and sign-in
	// needs the cloud password.
	ErrPasswordNeeded = errors.New("transport: 2FA password required")
)

// FloodWaitError is the protocol telling the client to back off for
// Duration before repeating the request.
type FloodWaitError struct {
	Duration time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("transport: flood wait %s", e.Duration)
}

// AsFloodWait reports whether err carries a flood-wait demand and
// returns the wait duration.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Duration, true
	}
	return 0, false
}
