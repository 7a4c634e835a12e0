package modem

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/smsbridge/at"
	"i4.energy/across/smsbridge/carrier"
	"i4.energy/across/smsbridge/registration"
)

var _ registration.Radio = (*Modem)(nil)

func (m *Modem) SetNetworkMode(ctx context.Context, mode carrier.Mode) error {
	return m.expectOK(ctx, at.SetNetworkMode(int(mode)), m.config.atTimeout)
}

func (m *Modem) SetLTEPreference(ctx context.Context, pref carrier.LTEPreference) error {
	return m.expectOK(ctx, at.SetLTEPreference(int(pref)), m.config.atTimeout)
}

func (m *Modem) LockOperator(ctx context.Context, numeric string, tech carrier.AccessTech) error {
	return m.expectOK(ctx, at.LockOperator(numeric, int(tech)), m.config.operatorTimeout)
}

func (m *Modem) AutoOperator(ctx context.Context) error {
	return m.expectOK(ctx, at.CmdAutoOperator, m.config.operatorTimeout)
}

// SignalQuality returns the RSSI reported by AT+CSQ.
func (m *Modem) SignalQuality(ctx context.Context) (int, bool) {
	ok, line, err := m.exec(ctx, at.CmdSignalQuality, at.InfoSignalQuality, m.config.atTimeout)
	if err != nil || !ok {
		return 0, false
	}
	return at.ParseSignalQuality(line)
}

// Registration queries the circuit-switched registration status once. Any
// failure to get or parse an answer yields at.RegInvalid. Unsolicited +CREG
// reports that arrive while the query is on the wire are skipped.
func (m *Modem) Registration(ctx context.Context) at.RegStatus {
	lines, err := m.lockedQuery(ctx, at.CmdRegistration, m.config.regQueryTimeout)
	if err != nil {
		return at.RegInvalid
	}
	for _, line := range lines {
		if at.IsRegistrationReply(line) {
			return at.ParseRegistration(line)
		}
	}
	return at.RegInvalid
}

// IsCsRegistered reports whether the modem is registered, at home or
// roaming. It costs one round-trip; callers arriving while a query is
// already on the wire share its answer. The shared query is detached from
// the caller that started it and bounded by the registration query timeout.
func (m *Modem) IsCsRegistered(ctx context.Context) bool {
	v, _, _ := m.regQuery.Do("creg", func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.regQueryTimeout)
		defer cancel()
		return m.Registration(qctx), nil
	})
	return v.(at.RegStatus).Registered()
}

// WaitRegistered polls the registration status until the modem registers or
// the timeout passes.
func (m *Modem) WaitRegistered(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if m.IsCsRegistered(ctx) {
			return true
		}
		if err := sleep(ctx, m.config.pollInterval); err != nil {
			return false
		}
	}
}

// ReadIMSI reads the subscriber identity from the SIM.
func (m *Modem) ReadIMSI(ctx context.Context) (carrier.IMSI, error) {
	lines, err := m.lockedQuery(ctx, at.CmdIMSI, m.config.atTimeout)
	if err != nil {
		return "", err
	}
	imsi, ok := at.ParseIMSI(lines)
	if !ok {
		return "", fmt.Errorf("no subscriber identity in %q", lines)
	}
	return carrier.IMSI(imsi), nil
}
