// Package provision implements the configuration channel: a client connects,
// reads the device status, writes new settings and is notified of the
// outcome.
package provision

import "fmt"

type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	ConfigRead
	ConfigWrite
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case ConfigRead:
		return "config_read"
	case ConfigWrite:
		return "config_write"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is something that happened on the configuration channel.
type Event struct {
	Kind EventKind
	// Client identifies the peer, for logging.
	Client string
	// Payload is the body of a ConfigWrite.
	Payload []byte
	// Reply receives the answer to a ConfigRead.
	Reply func([]byte)
}
