package modem

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport_test.go -package=modem

// Transport represents an established, bidirectional byte stream to a GSM modem.
//
// A Transport is assumed to be already connected and ready for use. Typical
// implementations are serial ports, TCP connections to emulators, or in-memory
// fakes used for testing. Close must unblock a pending Read.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a GSM modem. It is only used while the Modem is
// constructed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may block and should
	// respect cancellation of ctx.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is the rate SIMCom modules autobaud to out of the box.
const DefaultBaudRate = 115200

// SerialDialer opens the modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	// BaudRate is used when Mode is nil. Zero means DefaultBaudRate.
	BaudRate int
	// Mode overrides the default 8N1 settings.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}

// dtrSetter is implemented by serial.Port. Holding DTR asserted keeps SIMCom
// modules out of sleep mode.
type dtrSetter interface {
	SetDTR(dtr bool) error
}

func keepAwake(t Transport) error {
	if p, ok := t.(dtrSetter); ok {
		return p.SetDTR(true)
	}
	return nil
}
