package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer hands back no transport.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned by operations on a Modem after Close, and
	// by a second Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry the bring-up.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrSIMPinRejected is returned when the modem refuses the configured PIN.
	// Retrying with the same PIN would burn attempts towards a PUK lock.
	ErrSIMPinRejected = errors.New("SIM PIN rejected")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")

	// ErrInitFailed is returned by BringUp when the modem did not answer the
	// handshake. The modem has been power-cycled; calling BringUp again is
	// the way to recover.
	ErrInitFailed = errors.New("modem init failed")

	// ErrRegistrationFailed is returned by BringUp when no radio mode led to
	// a circuit-switched registration.
	ErrRegistrationFailed = errors.New("network registration failed")

	// ErrBusy is returned by SendSMS while another submission is in flight.
	ErrBusy = errors.New("modem busy")

	// ErrNoPrompt is returned when the modem does not offer the "> " prompt
	// for a message body.
	ErrNoPrompt = errors.New("no SMS input prompt")

	// ErrSendRejected is returned when the modem does not confirm a
	// submission with a message reference.
	ErrSendRejected = errors.New("SMS submission rejected")

	// ErrTimeout is returned by commands that expect a final result code and
	// got none in time.
	ErrTimeout = errors.New("no response from modem")

	// ErrNoPowerControl is returned by the power operations when no power
	// line is configured.
	ErrNoPowerControl = errors.New("no power line configured")
)
