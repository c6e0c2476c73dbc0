package at_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"i4.energy/across/loramon/at"
)

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{name: "Mode", got: at.ModeTest(), expected: "AT+MODE=TEST\r\n"},
		{name: "RF config", got: at.RFConfig(at.DefaultRadioConfig()), expected: "AT+TEST=RFCFG,868,SF7,125,12,15,8,ON\r\n"},
		{name: "Receive", got: at.ReceiveMode(), expected: "AT+TEST=RXLRPKT\r\n"},
		{name: "Temperature", got: at.QueryTemperature(), expected: "AT+TEST=TEMP\r\n"},
		{name: "Transmit text", got: at.TransmitPacket("Hello"), expected: "AT+TEST=TXLRPKT,\"48656C6C6F\"\r\n"},
		{name: "Transmit hex", got: at.TransmitPacket("48656C6C6F20467269656E64"), expected: "AT+TEST=TXLRPKT,\"48656C6C6F20467269656E64\"\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, tt.got)
			}
		})
	}
}

func TestRFConfigRoundTrip(t *testing.T) {
	configs := []at.RadioConfig{
		at.DefaultRadioConfig(),
		{FrequencyMHz: 915.2, SpreadingFactor: 12, BandwidthKHz: 500, CodingRate: 10, PowerDBm: 20, PreambleLength: 12, CRC: false},
		{FrequencyMHz: 433, SpreadingFactor: 9, BandwidthKHz: 250, CodingRate: 11, PowerDBm: 0, PreambleLength: 6, CRC: true},
	}

	for _, cfg := range configs {
		cmd := at.RFConfig(cfg)

		fields := strings.Split(strings.TrimSuffix(cmd, at.CRLF), ",")
		if fields[0] != at.CmdRFConfig {
			t.Fatalf("unexpected command head %q", fields[0])
		}
		want := cfg.Fields()
		if len(fields)-1 != len(want) {
			t.Fatalf("expected %d fields, got %d in %q", len(want), len(fields)-1, cmd)
		}
		for i, f := range want {
			if fields[i+1] != f {
				t.Errorf("field %d: expected %q, got %q", i, f, fields[i+1])
			}
		}

		parsed, err := at.ParseRFConfig(cmd)
		if err != nil {
			t.Fatalf("ParseRFConfig(%q): %v", cmd, err)
		}
		if parsed != cfg {
			t.Errorf("round trip mismatch: expected %+v, got %+v", cfg, parsed)
		}
	}
}

func TestParseRFConfigErrors(t *testing.T) {
	for _, cmd := range []string{
		"AT+TEST=TEMP",
		"AT+TEST=RFCFG,868,SF7,125",
		"AT+TEST=RFCFG,868,7,125,12,15,8,ON",
		"AT+TEST=RFCFG,abc,SF7,125,12,15,8,ON",
		"AT+TEST=RFCFG,868,SF7,125,12,15,8,MAYBE",
	} {
		if _, err := at.ParseRFConfig(cmd); err == nil {
			t.Errorf("expected error for %q", cmd)
		}
	}
}

func TestDescribe(t *testing.T) {
	got := at.DefaultRadioConfig().Describe()
	want := map[string]string{
		"Frequency":        "868 MHz",
		"Spreading Factor": "SF7",
		"Bandwidth":        "125 kHz",
		"Coding Rate":      "4/8",
		"Power":            "15 dBm",
		"Preamble":         "8",
		"CRC":              "ON",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for _, kv := range got {
		if want[kv[0]] != kv[1] {
			t.Errorf("%s: expected %q, got %q", kv[0], want[kv[0]], kv[1])
		}
	}
}

func TestEncodePayload(t *testing.T) {
	t.Run("ASCII text round trips through hex", func(t *testing.T) {
		for _, text := range []string{"Hello", "23.50", "Hello Friend", "a,b \"c\"", "~!@#"} {
			encoded := at.EncodePayload(text)
			if encoded != strings.ToUpper(encoded) {
				t.Errorf("expected uppercase hex, got %q", encoded)
			}
			decoded, err := hex.DecodeString(encoded)
			if err != nil {
				t.Fatalf("decode %q: %v", encoded, err)
			}
			if string(decoded) != text {
				t.Errorf("expected %q, got %q", text, decoded)
			}
		}
	})

	t.Run("Hex-looking text is sent as is", func(t *testing.T) {
		for _, text := range []string{"DEAD", "48656C6C6F", "cafe", "2350"} {
			if got := at.EncodePayload(text); got != text {
				t.Errorf("expected %q unchanged, got %q", text, got)
			}
			if got := at.EncodePayload(at.EncodePayload(text)); got != text {
				t.Errorf("expected idempotent encoding for %q, got %q", text, got)
			}
		}
	})

	t.Run("Temperature with decimal point is encoded", func(t *testing.T) {
		if got := at.EncodePayload("23.50"); got != "32332E3530" {
			t.Errorf("expected 32332E3530, got %q", got)
		}
	})
}
