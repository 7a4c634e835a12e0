package modem

import "log/slog"

// traceTransport logs the raw exchange with the modem.
type traceTransport struct {
	Transport
	logger *slog.Logger
}

// Trace wraps t so that every read and write is logged at debug level.
func Trace(t Transport, logger *slog.Logger) Transport {
	return &traceTransport{Transport: t, logger: logger}
}

func (t *traceTransport) Read(p []byte) (int, error) {
	n, err := t.Transport.Read(p)
	if n > 0 {
		t.logger.Debug("AT", "dir", "r", "data", string(p[:n]))
	}
	return n, err
}

func (t *traceTransport) Write(p []byte) (int, error) {
	n, err := t.Transport.Write(p)
	if n > 0 {
		t.logger.Debug("AT", "dir", "w", "data", string(p[:n]))
	}
	return n, err
}

// SetDTR forwards to the wrapped port so tracing does not hide it.
func (t *traceTransport) SetDTR(dtr bool) error {
	if p, ok := t.Transport.(dtrSetter); ok {
		return p.SetDTR(dtr)
	}
	return nil
}
