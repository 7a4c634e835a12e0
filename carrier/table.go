package carrier

// Builtin returns a fresh copy of the compiled-in operator table.
func Builtin() []Profile {
	return []Profile{
		{
			ID:            "22601",
			Name:          "Vodafone RO",
			Modes:         []Mode{ModeGSMOnly, ModeGSMAndLTE, ModeLTEOnly},
			LTEPreference: LTECatM,
			APN:           &APN{Name: "live.vodafone.com", User: "live"},
		},
		{
			ID:    "22603",
			Name:  "Telekom RO",
			Modes: []Mode{ModeGSMOnly, ModeAutomatic},
			APN:   &APN{Name: "internet.telekom"},
		},
		{
			// Digi only hands out CS service on 2G to IoT modules.
			ID:           "22605",
			Name:         "Digi RO",
			Modes:        []Mode{ModeGSMOnly, ModeGSMAndLTE},
			OperatorLock: "22605",
			LockTech:     TechGSM,
			APN:          &APN{Name: "internet"},
		},
		{
			ID:            "22610",
			Name:          "Orange RO",
			Modes:         []Mode{ModeGSMAndLTE, ModeGSMOnly, ModeLTEOnly},
			LTEPreference: LTECatMAndNBIoT,
			APN:           &APN{Name: "net"},
		},
		{
			ID:            "26201",
			Name:          "Telekom DE",
			Modes:         []Mode{ModeLTEOnly, ModeGSMOnly},
			LTEPreference: LTECatM,
			APN:           &APN{Name: "internet.telekom"},
		},
		{
			ID:    "23410",
			Name:  "O2 UK",
			Modes: []Mode{ModeGSMAndLTE, ModeGSMOnly, ModeNone, ModeNone},
			APN:   &APN{Name: "mobile.o2.co.uk", User: "o2web"},
		},
	}
}
