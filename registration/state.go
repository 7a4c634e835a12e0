package registration

import (
	"i4.energy/across/smsbridge/at"
	"i4.energy/across/smsbridge/carrier"
)

// UnknownSignal is the CSQ value a modem reports when it cannot measure.
const UnknownSignal = 99

// State is what the orchestrator knows about the search in progress.
type State struct {
	Profile       string       `json:"profile"`
	Mode          carrier.Mode `json:"mode"`
	SignalQuality int          `json:"csq"`
	Status        at.RegStatus `json:"status"`
	// Attempts counts registration polls across all modes of the run.
	Attempts int `json:"attempts"`
}

// Result is the outcome of one Run.
type Result struct {
	Registered bool `json:"registered"`
	// Mode is the mode that registered, zero when none did.
	Mode       carrier.Mode   `json:"mode"`
	Tried      []carrier.Mode `json:"tried"`
	LastResort bool           `json:"last_resort"`
	State      State          `json:"state"`
}
