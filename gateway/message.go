package gateway

import "unicode/utf8"

const (
	MinMessageLength = 1
	// MaxMessageLength allows up to three concatenated segments; the modem
	// splits anything longer than a single SMS.
	MaxMessageLength = 480

	MinPhoneLength = 7
	MaxPhoneLength = 20
)

// OutboundMessage is a single SMS to submit.
type OutboundMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Validate checks the message length first and the destination second; the
// first violation is returned.
func (m OutboundMessage) Validate() error {
	if n := utf8.RuneCountInString(m.Message); n < MinMessageLength || n > MaxMessageLength {
		return ErrInvalidMessageLength
	}
	if !LooksLikePhone(m.Phone) {
		return ErrInvalidPhone
	}
	return nil
}

// LooksLikePhone accepts 7 to 20 characters of digits with an optional
// leading '+'. It does not check that the number exists.
func LooksLikePhone(s string) bool {
	if len(s) < MinPhoneLength || len(s) > MaxPhoneLength {
		return false
	}
	for i, c := range s {
		if c == '+' && i == 0 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
