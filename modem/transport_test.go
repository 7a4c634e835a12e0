package modem

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "modem: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{PortName: "/dev/ttyUSB0"}

	//nolint:staticcheck // nil context is the case under test
	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "modem: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{PortName: "/dev/nonexistent"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_NonexistentPort(t *testing.T) {
	for name, dialer := range map[string]SerialDialer{
		"default mode": {PortName: "/dev/nonexistent"},
		"explicit baud": {PortName: "/dev/nonexistent", BaudRate: 9600},
		"explicit mode": {
			PortName: "/dev/nonexistent",
			Mode: &serial.Mode{
				BaudRate: 115200,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			transport, err := dialer.Dial(context.Background())

			if err == nil {
				t.Fatal("expected error for non-existent port")
			}
			if transport != nil {
				t.Error("expected nil transport for non-existent port")
			}
			if !strings.Contains(err.Error(), "/dev/nonexistent") {
				t.Errorf("expected the port name in the error, got: %v", err)
			}
		})
	}
}

type portWithDTR struct {
	*MockTransport
	*MockdtrSetter
}

func TestKeepAwake(t *testing.T) {
	t.Run("asserts DTR on serial ports", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := portWithDTR{NewMockTransport(ctrl), NewMockdtrSetter(ctrl)}
		port.MockdtrSetter.EXPECT().SetDTR(true).Return(nil)

		if err := keepAwake(port); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("reports DTR failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := portWithDTR{NewMockTransport(ctrl), NewMockdtrSetter(ctrl)}
		port.MockdtrSetter.EXPECT().SetDTR(true).Return(errors.New("ioctl failed"))

		if err := keepAwake(port); err == nil {
			t.Error("expected error from SetDTR")
		}
	})

	t.Run("ignores transports without DTR", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		if err := keepAwake(NewMockTransport(ctrl)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("passes through the trace wrapper", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := portWithDTR{NewMockTransport(ctrl), NewMockdtrSetter(ctrl)}
		port.MockdtrSetter.EXPECT().SetDTR(true).Return(nil)

		if err := keepAwake(Trace(port, slog.Default())); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestTrace(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockTransport := NewMockTransport(ctrl)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	traced := Trace(mockTransport, logger)

	mockTransport.EXPECT().Write([]byte("AT\r")).Return(3, nil)
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		return copy(p, "\r\nOK\r\n"), nil
	})

	if _, err := traced.Write([]byte("AT\r")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	p := make([]byte, 16)
	n, err := traced.Read(p)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if string(p[:n]) != "\r\nOK\r\n" {
		t.Errorf("unexpected data read: %q", p[:n])
	}

	out := buf.String()
	if !strings.Contains(out, "dir=w") || !strings.Contains(out, "dir=r") {
		t.Errorf("expected both directions to be logged, got: %s", out)
	}
}
