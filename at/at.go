// Package at holds the AT command vocabulary spoken by SIMCom-class cellular
// modems together with the tokenizer and the parsers for the few information
// responses the bridge relies on.
package at

import "fmt"

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg        = "+CMTI:"
	UrcMessageReport = "+CDSI:"
	UrcCall          = "RING"
	UrcReady         = "RDY"
	UrcSMSReady      = "SMS Ready"
	UrcCallReady     = "Call Ready"
	UrcFunctionality = "+CFUN:"
	UrcPowerDown     = "NORMAL POWER DOWN"

	// Information response prefixes
	InfoRegistration  = "+CREG:"
	InfoSignalQuality = "+CSQ:"
	InfoSimStatus     = "+CPIN:"
	InfoMessageRef    = "+CMGS:"
	InfoSystem        = "+CPSI:"

	// SIM states reported by AT+CPIN?
	SimReady = "READY"
	SimPin   = "SIM PIN"
	SimPuk   = "SIM PUK"
)

// Commands issued verbatim.
const (
	CmdAt                  = "AT"
	CmdEchoOff             = "ATE0"
	CmdVerboseErrors       = "AT+CMEE=2"
	CmdSimStatus           = "AT+CPIN?"
	CmdSetTextMode         = "AT+CMGF=1"
	CmdSetPDUMode          = "AT+CMGF=0"
	CmdIMSI                = "AT+CIMI"
	CmdSignalQuality       = "AT+CSQ"
	CmdRegistration        = "AT+CREG?"
	CmdRegistrationURC     = "AT+CREG=2"
	CmdGPRSRegistrationURC = "AT+CGREG=2"
	CmdAutoOperator        = "AT+COPS=0"
	CmdModemInfo           = "ATI"
	CmdModelName           = "AT+CGMM"
	CmdProductInfo         = "AT+SIMCOMATI"
	CmdPreferredMode       = "AT+CNMP?"
	CmdLTEPreference       = "AT+CMNB?"
	CmdSystemInfo          = "AT+CPSI?"
)

// SetNetworkMode selects the radio access technology (AT+CNMP).
func SetNetworkMode(mode int) string {
	return fmt.Sprintf("AT+CNMP=%d", mode)
}

// SetLTEPreference selects between Cat-M and NB-IoT (AT+CMNB).
func SetLTEPreference(pref int) string {
	return fmt.Sprintf("AT+CMNB=%d", pref)
}

// LockOperator forces manual selection of a numeric operator on one access
// technology (AT+COPS=1,2,...).
func LockOperator(numeric string, act int) string {
	return fmt.Sprintf(`AT+COPS=1,2,"%s",%d`, numeric, act)
}

// EnterPIN unlocks the SIM.
func EnterPIN(pin string) string {
	return fmt.Sprintf(`AT+CPIN="%s"`, pin)
}

// SendTextSMS starts a text mode submission to a recipient.
func SendTextSMS(recipient string) string {
	return fmt.Sprintf(`AT+CMGS="%s"`, recipient)
}

// SendPDU starts a PDU mode submission of a TPDU of the given length in
// octets, excluding the SMSC address.
func SendPDU(length int) string {
	return fmt.Sprintf("AT+CMGS=%d", length)
}

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	default:
		return fmt.Sprintf("ResponseType(%d)", int(t))
	}
}
