package at

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// RadioConfig holds the static LoRa parameters written with AT+TEST=RFCFG.
// The zero value is not usable, start from DefaultRadioConfig.
type RadioConfig struct {
	FrequencyMHz    float64 `yaml:"frequency_mhz" json:"frequency_mhz"`
	SpreadingFactor int     `yaml:"spreading_factor" json:"spreading_factor"`
	BandwidthKHz    int     `yaml:"bandwidth_khz" json:"bandwidth_khz"`
	// CodingRate is the raw token the firmware expects (12 selects 4/8).
	CodingRate     int  `yaml:"coding_rate" json:"coding_rate"`
	PowerDBm       int  `yaml:"power_dbm" json:"power_dbm"`
	PreambleLength int  `yaml:"preamble_length" json:"preamble_length"`
	CRC            bool `yaml:"crc" json:"crc"`
}

// DefaultRadioConfig returns the EU868 parameter set both modules are flashed for.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		FrequencyMHz:    868,
		SpreadingFactor: 7,
		BandwidthKHz:    125,
		CodingRate:      12,
		PowerDBm:        15,
		PreambleLength:  8,
		CRC:             true,
	}
}

// Fields returns the seven RFCFG arguments in wire order and wire form.
func (c RadioConfig) Fields() []string {
	crc := "OFF"
	if c.CRC {
		crc = "ON"
	}
	return []string{
		strconv.FormatFloat(c.FrequencyMHz, 'f', -1, 64),
		"SF" + strconv.Itoa(c.SpreadingFactor),
		strconv.Itoa(c.BandwidthKHz),
		strconv.Itoa(c.CodingRate),
		strconv.Itoa(c.PowerDBm),
		strconv.Itoa(c.PreambleLength),
		crc,
	}
}

// Describe returns the labelled parameters for display, built from the same
// values as the RFCFG command.
func (c RadioConfig) Describe() [][2]string {
	f := c.Fields()
	return [][2]string{
		{"Frequency", f[0] + " MHz"},
		{"Spreading Factor", f[1]},
		{"Bandwidth", f[2] + " kHz"},
		{"Coding Rate", fmt.Sprintf("4/%d", c.CodingRate*2/3)},
		{"Power", f[4] + " dBm"},
		{"Preamble", f[5]},
		{"CRC", f[6]},
	}
}

// ModeTest switches the module into raw LoRa test mode.
func ModeTest() string {
	return CmdModeTest + CRLF
}

// RFConfig builds the RF configuration command.
func RFConfig(c RadioConfig) string {
	return CmdRFConfig + "," + strings.Join(c.Fields(), ",") + CRLF
}

// ReceiveMode enables continuous packet reception.
func ReceiveMode() string {
	return CmdReceive + CRLF
}

// QueryTemperature asks the module for its internal sensor reading.
func QueryTemperature() string {
	return CmdTemperature + CRLF
}

// TransmitPacket builds the transmit command for payload, see EncodePayload.
func TransmitPacket(payload string) string {
	return CmdTransmit + "," + Quote + EncodePayload(payload) + Quote + CRLF
}

// EncodePayload returns the hex form of text sent with AT+TEST=TXLRPKT.
//
// Text made only of hex digits is assumed to be encoded already and is passed
// through untouched, so "DEAD" goes on air as the two bytes 0xDE 0xAD. The
// receiving side cannot tell the two cases apart; changing this changes what
// is transmitted.
func EncodePayload(text string) string {
	if IsHex(text) {
		return text
	}
	return strings.ToUpper(hex.EncodeToString([]byte(text)))
}

// IsHex reports whether s consists solely of hexadecimal digits.
func IsHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(hexDigits, r) {
			return false
		}
	}
	return true
}

// ParseRFConfig reverses RFConfig.
func ParseRFConfig(cmd string) (RadioConfig, error) {
	var c RadioConfig

	rest, ok := strings.CutPrefix(strings.TrimSpace(cmd), CmdRFConfig+",")
	if !ok {
		return c, fmt.Errorf("not an RFCFG command: %q", cmd)
	}
	fields := strings.Split(rest, ",")
	if len(fields) != 7 {
		return c, fmt.Errorf("RFCFG expects 7 fields, got %d", len(fields))
	}

	var err error
	if c.FrequencyMHz, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return c, fmt.Errorf("frequency: %w", err)
	}
	sf, ok := strings.CutPrefix(fields[1], "SF")
	if !ok {
		return c, fmt.Errorf("spreading factor %q lacks SF prefix", fields[1])
	}
	ints := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"spreading factor", sf, &c.SpreadingFactor},
		{"bandwidth", fields[2], &c.BandwidthKHz},
		{"coding rate", fields[3], &c.CodingRate},
		{"power", fields[4], &c.PowerDBm},
		{"preamble", fields[5], &c.PreambleLength},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(f.raw); err != nil {
			return c, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	switch fields[6] {
	case "ON":
		c.CRC = true
	case "OFF":
		c.CRC = false
	default:
		return c, fmt.Errorf("crc: unexpected %q", fields[6])
	}
	return c, nil
}
