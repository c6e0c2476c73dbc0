package at

const (
	// Terminal Control
	CRLF  = "\r\n"
	Quote = `"`

	// Response Codes
	OK    = "OK"
	ERROR = "ERROR"

	// Commands
	CmdModeTest    = "AT+MODE=TEST"
	CmdRFConfig    = "AT+TEST=RFCFG"
	CmdReceive     = "AT+TEST=RXLRPKT"
	CmdTemperature = "AT+TEST=TEMP"
	CmdTransmit    = "AT+TEST=TXLRPKT"

	// Markers found in module output
	TempMarker = "TEMP"
	RxMarker   = "+TEST: RX"

	hexDigits = "0123456789ABCDEFabcdef"
)

type ResponseType int

const (
	TypeInfo        ResponseType = iota // anything not listed below
	TypeFinal                           // plain OK acknowledgement
	TypeError                           // line carrying ERROR
	TypeTemperature                     // line carrying a TEMP marker
	TypePacket                          // received LoRa packet notification
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeError:
		return "error"
	case TypeTemperature:
		return "temperature"
	case TypePacket:
		return "packet"
	default:
		return "info"
	}
}
