package waveplus

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/avoznyak/wavemon/wavemon"
)

// Register layout of the "current values" characteristic, format version 1,
// per the vendor register map. All multi-byte fields are little-endian.
const (
	payloadLen    = 20
	formatVersion = 1

	offFormat      = 0  // uint8, format version
	offHumidity    = 1  // uint8, %rH * 2
	offRadonShort  = 4  // uint16, Bq/m3
	offRadonLong   = 6  // uint16, Bq/m3
	offTemperature = 8  // uint16, degC * 100
	offPressure    = 10 // uint16, hPa * 50
	offCo2         = 12 // uint16, ppm
	offVoc         = 14 // uint16, ppb
)

// radonMax is the largest raw value the radon sensor can report. Anything
// above it means the estimate is not available yet.
const radonMax = 16383

// Decode maps one raw characteristic payload to physical units. The whole
// payload is rejected if its length or format version byte is not the one
// this decoder supports; an out-of-range radon value only invalidates that
// radon field.
func Decode(raw []byte) (wavemon.Reading, error) {
	if len(raw) != payloadLen {
		return wavemon.Reading{}, errors.Wrapf(wavemon.ErrUnexpectedFormat,
			"payload is %d bytes, want %d", len(raw), payloadLen)
	}
	if v := raw[offFormat]; v != formatVersion {
		return wavemon.Reading{}, errors.Wrapf(wavemon.ErrUnexpectedFormat,
			"format version %d, want %d", v, formatVersion)
	}

	u16 := func(off int) uint16 { return binary.LittleEndian.Uint16(raw[off:]) }
	return wavemon.Reading{
		Humidity:    float32(raw[offHumidity]) / 2.0,
		RadonShort:  radonEstimate(u16(offRadonShort)),
		RadonLong:   radonEstimate(u16(offRadonLong)),
		Temperature: float32(u16(offTemperature)) / 100.0,
		AtmPressure: float32(u16(offPressure)) / 50.0,
		Co2Level:    u16(offCo2),
		VocLevel:    u16(offVoc),
	}, nil
}

func radonEstimate(raw uint16) wavemon.RadonEstimate {
	if raw > radonMax {
		return wavemon.RadonEstimate{}
	}
	return wavemon.RadonEstimate{BqM3: raw, Valid: true}
}
