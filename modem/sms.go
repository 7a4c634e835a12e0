package modem

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/warthog618/sms"
	"github.com/warthog618/sms/encoding/tpdu"

	"i4.energy/across/smsbridge/at"
)

// SendSMS submits a message to the network. A nil error means the modem
// acknowledged the submission with a message reference; it is not a delivery
// receipt.
//
// Only one submission runs at a time. A call made while another is in
// flight fails immediately with ErrBusy without touching the modem.
//
// Plain ASCII text that fits a single GSM 7-bit segment goes out in text
// mode. Anything else is split into concatenated segments and submitted in
// PDU mode, since text mode hands the body to the modem in its own character
// set.
func (m *Modem) SendSMS(ctx context.Context, recipient, message string) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if !m.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.busy.Store(false)

	segments, err := sms.Encode([]byte(message), sms.AsSubmit, sms.To(recipient))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(segments) == 1 && isGSM7(&segments[0]) && isASCII(message) {
		err = m.sendText(ctx, recipient, message)
	} else {
		err = m.sendPDUs(ctx, segments)
	}
	if err != nil {
		return err
	}
	m.logger.Info("SMS submitted", "to", recipient, "length", len(message), "segments", len(segments))
	return nil
}

func isGSM7(t *tpdu.TPDU) bool {
	alpha, err := t.DCS.Alphabet()
	return err == nil && alpha == tpdu.Alpha7Bit
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sendText submits in text mode. The caller must hold m.mu.
func (m *Modem) sendText(ctx context.Context, recipient, message string) error {
	if err := m.sendCommand(at.SendTextSMS(recipient)); err != nil {
		return err
	}
	return m.submitBody(ctx, message)
}

// sendPDUs submits each segment in PDU mode and switches back to text mode
// afterwards. The caller must hold m.mu.
func (m *Modem) sendPDUs(ctx context.Context, segments []tpdu.TPDU) error {
	if _, err := m.query(ctx, at.CmdSetPDUMode, m.config.atTimeout); err != nil {
		return fmt.Errorf("set PDU mode: %w", err)
	}
	defer func() {
		if _, err := m.query(context.WithoutCancel(ctx), at.CmdSetTextMode, m.config.atTimeout); err != nil {
			m.logger.Warn("Failed to restore SMS text mode", "error", err)
		}
	}()

	for i := range segments {
		b, err := segments[i].MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshal segment %d: %w", i+1, err)
		}
		// A zero SMSC length octet makes the modem use the SIM's SMSC.
		pdu := "00" + strings.ToUpper(hex.EncodeToString(b))

		if err := m.sendCommand(at.SendPDU(len(b))); err != nil {
			return err
		}
		if err := m.submitBody(ctx, pdu); err != nil {
			return fmt.Errorf("segment %d/%d: %w", i+1, len(segments), err)
		}
		m.logger.Debug("SMS segment submitted", "segment", i+1, "of", len(segments))
	}
	return nil
}

// submitBody waits for the input prompt, writes the body and waits for the
// message reference.
func (m *Modem) submitBody(ctx context.Context, body string) error {
	if ok, line := m.awaitResponse(ctx, m.config.atTimeout, at.Prompt); !ok {
		return fmt.Errorf("%w, got: %q", ErrNoPrompt, line)
	}
	if err := m.writeRaw(body + at.CtrlZ); err != nil {
		return err
	}
	if ok, line := m.awaitResponse(ctx, m.config.sendTimeout, at.InfoMessageRef); !ok {
		if line == "" {
			return fmt.Errorf("%w: %w", ErrSendRejected, ErrTimeout)
		}
		return fmt.Errorf("%w: %s", ErrSendRejected, line)
	}
	return nil
}
