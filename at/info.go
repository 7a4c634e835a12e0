package at

import (
	"strconv"
	"strings"
)

// RegStatus is the <stat> field of a +CREG response.
type RegStatus int

const (
	// RegInvalid marks a response that could not be parsed.
	RegInvalid RegStatus = -1

	RegNotRegistered RegStatus = 0
	RegHome          RegStatus = 1
	RegSearching     RegStatus = 2
	RegDenied        RegStatus = 3
	RegUnknown       RegStatus = 4
	RegRoaming       RegStatus = 5
)

// Registered is true for home and roaming registration only.
func (s RegStatus) Registered() bool {
	return s == RegHome || s == RegRoaming
}

func (s RegStatus) String() string {
	switch s {
	case RegNotRegistered:
		return "not registered"
	case RegHome:
		return "home"
	case RegSearching:
		return "searching"
	case RegDenied:
		return "denied"
	case RegUnknown:
		return "unknown"
	case RegRoaming:
		return "roaming"
	default:
		return "invalid"
	}
}

// HasPrefix reports whether the line is an information response with the
// given prefix, e.g. HasPrefix("+CSQ: 12,99", InfoSignalQuality).
func HasPrefix(line, prefix string) bool {
	return strings.HasPrefix(line, prefix)
}

// TrimPrefix strips an information response prefix and the padding after it.
func TrimPrefix(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

// ParseRegistration extracts the registration status from a +CREG query
// response such as `+CREG: 2,1,"D160","BDA8",0`. The status is the field after
// the first comma. Anything that does not fit yields RegInvalid.
func ParseRegistration(line string) RegStatus {
	body := TrimPrefix(line, InfoRegistration)
	_, rest, found := strings.Cut(body, ",")
	if !found {
		return RegInvalid
	}
	field, _, _ := strings.Cut(rest, ",")
	stat, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return RegInvalid
	}
	return RegStatus(stat)
}

// IsRegistrationReply tells the answer to AT+CREG? from the unsolicited
// registration report. The report has no leading <n> field, so its second
// field is the quoted location area (`+CREG: 1,"D160","BDA8",7`) or missing
// altogether (`+CREG: 1`).
func IsRegistrationReply(line string) bool {
	if !HasPrefix(line, InfoRegistration) {
		return false
	}
	_, rest, found := strings.Cut(TrimPrefix(line, InfoRegistration), ",")
	if !found {
		return false
	}
	field, _, _ := strings.Cut(rest, ",")
	_, err := strconv.Atoi(strings.TrimSpace(field))
	return err == nil
}

// ParseSignalQuality returns the RSSI field of a +CSQ response. 99 means the
// modem does not know.
func ParseSignalQuality(line string) (int, bool) {
	if !HasPrefix(line, InfoSignalQuality) {
		return 0, false
	}
	field, _, _ := strings.Cut(TrimPrefix(line, InfoSignalQuality), ",")
	rssi, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0, false
	}
	return rssi, true
}

const imsiMinLength = 15

// ParseIMSI picks the subscriber identity out of an AT+CIMI response.
func ParseIMSI(lines []string) (string, bool) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < imsiMinLength || !isDigits(line) {
			continue
		}
		return line, true
	}
	return "", false
}

// ParseSimStatus returns the state reported by AT+CPIN?, e.g. "READY".
func ParseSimStatus(lines []string) (string, bool) {
	for _, line := range lines {
		if HasPrefix(line, InfoSimStatus) {
			return TrimPrefix(line, InfoSimStatus), true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
