package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter tokenizes modem output. It uses the signature of bufio.SplitFunc
// so it can be plugged directly into a bufio.Scanner.
//
// Lines are terminated by CRLF. The SMS input prompt ("> ") is not followed by
// a line ending and is returned as a token on its own.
//
// Echoed commands are returned as ordinary lines, so consumers that run
// before ATE0 has been issued must be prepared to skip them.
//
// When atEOF is set any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of a line of modem output.
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	case UrcCall, UrcReady, UrcSMSReady, UrcCallReady, UrcPowerDown:
		return TypeURC
	}

	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg),
		strings.HasPrefix(line, UrcMessageReport),
		strings.HasPrefix(line, UrcFunctionality):
		return TypeURC
	default:
		return TypeData
	}
}

// IsError reports whether a final result code signals failure.
func IsError(line string) bool {
	return Classify(line) == TypeFinal && line != OK
}
