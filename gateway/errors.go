package gateway

import "errors"

// Submission errors. Each maps to a distinct answer on the local API, so
// callers can tell a request they should fix from one they should retry.
var (
	ErrInvalidMessageLength = errors.New("message length 1..480 required")
	ErrInvalidPhone         = errors.New("invalid phone format")
	// ErrNotRegistered means the modem has no circuit-switched registration.
	// Nothing was sent.
	ErrNotRegistered = errors.New("modem not registered on network")
	// ErrBusy means another submission holds the modem.
	ErrBusy = errors.New("modem busy")
	// ErrSendFailed wraps the modem's reason for not accepting a message.
	ErrSendFailed = errors.New("send failed")
)
