package waveplus

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/avoznyak/wavemon/wavemon"
)

func payload(version, humidity byte, radonShort, radonLong, temp, pressure, co2, voc uint16) []byte {
	raw := make([]byte, payloadLen)
	raw[offFormat] = version
	raw[offHumidity] = humidity
	binary.LittleEndian.PutUint16(raw[offRadonShort:], radonShort)
	binary.LittleEndian.PutUint16(raw[offRadonLong:], radonLong)
	binary.LittleEndian.PutUint16(raw[offTemperature:], temp)
	binary.LittleEndian.PutUint16(raw[offPressure:], pressure)
	binary.LittleEndian.PutUint16(raw[offCo2:], co2)
	binary.LittleEndian.PutUint16(raw[offVoc:], voc)
	return raw
}

func TestDecode(t *testing.T) {
	reading, err := Decode(payload(1, 84, 50, 800, 2050, 50650, 250, 500))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if reading.Humidity != 42.0 {
		t.Errorf("Humidity: got %v, want 42.0", reading.Humidity)
	}
	if !reading.RadonShort.Valid || reading.RadonShort.BqM3 != 50 {
		t.Errorf("RadonShort: got %+v, want valid 50", reading.RadonShort)
	}
	if !reading.RadonLong.Valid || reading.RadonLong.BqM3 != 800 {
		t.Errorf("RadonLong: got %+v, want valid 800", reading.RadonLong)
	}
	if reading.Temperature != 20.5 {
		t.Errorf("Temperature: got %v, want 20.5", reading.Temperature)
	}
	if reading.AtmPressure != 1013.0 {
		t.Errorf("AtmPressure: got %v, want 1013.0", reading.AtmPressure)
	}
	if reading.Co2Level != 250 {
		t.Errorf("Co2Level: got %v, want 250", reading.Co2Level)
	}
	if reading.VocLevel != 500 {
		t.Errorf("VocLevel: got %v, want 500", reading.VocLevel)
	}
}

func TestDecodeRadonSentinel(t *testing.T) {
	tests := []struct {
		name      string
		raw       uint16
		wantValid bool
	}{
		{"zero", 0, true},
		{"upper bound", 16383, true},
		{"just above", 16384, false},
		{"uninitialized", 0xFFFF, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := Decode(payload(1, 84, tt.raw, 100, 2050, 50650, 250, 500))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if reading.RadonShort.Valid != tt.wantValid {
				t.Errorf("RadonShort.Valid: got %v, want %v", reading.RadonShort.Valid, tt.wantValid)
			}
			if tt.wantValid && reading.RadonShort.BqM3 != tt.raw {
				t.Errorf("RadonShort.BqM3: got %d, want %d", reading.RadonShort.BqM3, tt.raw)
			}
		})
	}
}

func TestDecodeInvalidRadonDoesNotAbort(t *testing.T) {
	reading, err := Decode(payload(1, 84, 0xFFFF, 800, 2050, 50650, 250, 500))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if reading.RadonShort.Valid {
		t.Errorf("RadonShort should be invalid, got %+v", reading.RadonShort)
	}
	if !reading.RadonLong.Valid || reading.RadonLong.BqM3 != 800 {
		t.Errorf("RadonLong: got %+v, want valid 800", reading.RadonLong)
	}
	if reading.Humidity != 42.0 || reading.Temperature != 20.5 {
		t.Errorf("other fields affected: %+v", reading)
	}
}

func TestDecodeRejectsUnexpectedFormat(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"too short", payload(1, 84, 50, 800, 2050, 50650, 250, 500)[:19]},
		{"too long", append(payload(1, 84, 50, 800, 2050, 50650, 250, 500), 0)},
		{"format version 0", payload(0, 84, 50, 800, 2050, 50650, 250, 500)},
		{"format version 2", payload(2, 84, 50, 800, 2050, 50650, 250, 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := Decode(tt.raw)
			if errors.Cause(err) != wavemon.ErrUnexpectedFormat {
				t.Fatalf("Decode: got err %v, want cause ErrUnexpectedFormat", err)
			}
			if reading != (wavemon.Reading{}) {
				t.Errorf("Decode returned a partial record: %+v", reading)
			}
		})
	}
}
