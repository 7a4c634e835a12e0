// Package carrier maps a SIM's subscriber identity onto the radio settings
// that are known to get that operator's network to accept a circuit-switched
// registration.
package carrier

import (
	"errors"
	"fmt"
)

// Mode is a preferred radio access technology as understood by AT+CNMP.
type Mode int

const (
	ModeNone      Mode = 0
	ModeAutomatic Mode = 2
	ModeGSMOnly   Mode = 13
	ModeLTEOnly   Mode = 38
	ModeGSMAndLTE Mode = 51
)

// Valid reports whether the modem accepts the value.
func (m Mode) Valid() bool {
	switch m {
	case ModeAutomatic, ModeGSMOnly, ModeLTEOnly, ModeGSMAndLTE:
		return true
	}
	return false
}

// IsLTE reports whether the mode lets the radio camp on LTE, which is when
// the Cat-M / NB-IoT preference applies.
func (m Mode) IsLTE() bool {
	return m == ModeLTEOnly || m == ModeGSMAndLTE
}

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeAutomatic:
		return "automatic"
	case ModeGSMOnly:
		return "gsm"
	case ModeLTEOnly:
		return "lte"
	case ModeGSMAndLTE:
		return "gsm+lte"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// LTEPreference is the AT+CMNB choice between the LTE sub-technologies.
type LTEPreference int

const (
	LTEUnspecified  LTEPreference = 0
	LTECatM         LTEPreference = 1
	LTENBIoT        LTEPreference = 2
	LTECatMAndNBIoT LTEPreference = 3
)

// AccessTech is the <AcT> field of a manual AT+COPS selection.
type AccessTech int

const (
	TechGSM   AccessTech = 0
	TechCatM  AccessTech = 7
	TechNBIoT AccessTech = 9
)

// APN holds packet data parameters. SMS does not use them; they travel with
// the profile so a data path can be added without another table.
type APN struct {
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user,omitempty"`
	Password string `yaml:"password" json:"-"`
}

// MaxModes is the number of radio mode candidates a profile may list.
const MaxModes = 4

// Profile is the radio configuration for one operator.
type Profile struct {
	// ID is the MCC+MNC the profile applies to, e.g. "22605".
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Modes are tried in order. ModeNone entries are placeholders and skipped.
	Modes         []Mode        `yaml:"modes" json:"modes"`
	LTEPreference LTEPreference `yaml:"lte_preference" json:"lte_preference"`
	// OperatorLock, when set, pins the registration to this numeric operator
	// using LockTech instead of letting the modem pick one.
	OperatorLock string     `yaml:"operator_lock" json:"operator_lock,omitempty"`
	LockTech     AccessTech `yaml:"lock_tech" json:"lock_tech"`
	APN          *APN       `yaml:"apn" json:"apn,omitempty"`
}

var (
	ErrNoModes      = errors.New("profile has no radio mode candidates")
	ErrTooManyModes = errors.New("profile lists more than 4 radio modes")
	ErrInvalidMode  = errors.New("invalid radio mode")
	ErrInvalidID    = errors.New("network identifier must be 5 digits")
)

// Validate checks the invariants the resolver relies on.
func (p *Profile) Validate() error {
	if len(p.ID) != NetworkIDLength || !digits(p.ID) {
		return fmt.Errorf("%q: %w", p.ID, ErrInvalidID)
	}
	if len(p.Modes) > MaxModes {
		return fmt.Errorf("%s: %w", p.ID, ErrTooManyModes)
	}
	for _, m := range p.Modes {
		if m != ModeNone && !m.Valid() {
			return fmt.Errorf("%s: %w: %d", p.ID, ErrInvalidMode, int(m))
		}
	}
	if len(p.Candidates()) == 0 {
		return fmt.Errorf("%s: %w", p.ID, ErrNoModes)
	}
	return nil
}

// Candidates returns the modes to try, in priority order, without
// placeholders. A nil profile yields GenericModes.
func (p *Profile) Candidates() []Mode {
	if p == nil {
		return GenericModes()
	}
	modes := make([]Mode, 0, len(p.Modes))
	for _, m := range p.Modes {
		if m != ModeNone {
			modes = append(modes, m)
		}
	}
	return modes
}

func (p *Profile) String() string {
	if p == nil {
		return "generic"
	}
	return p.Name + " (" + p.ID + ")"
}

// GenericModes is the order used when no profile matches the SIM.
func GenericModes() []Mode {
	return []Mode{ModeAutomatic, ModeGSMOnly, ModeLTEOnly, ModeGSMAndLTE}
}

// NetworkIDLength is the length of the MCC+MNC prefix the table is keyed by.
const NetworkIDLength = 5

// IMSI is the subscriber identity read from the SIM.
type IMSI string

// NetworkID returns the MCC+MNC prefix, or "" for an identity that is too
// short to carry one.
func (i IMSI) NetworkID() string {
	if len(i) < NetworkIDLength {
		return ""
	}
	return string(i[:NetworkIDLength])
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
