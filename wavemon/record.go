package wavemon

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// SerialNumber identifies one physical device. It is the 10-digit decimal
// number printed on the backplate, advertised by the device in its
// manufacturer data.
type SerialNumber uint32

// ParseSerial parses the backplate serial number string.
func ParseSerial(s string) (SerialNumber, error) {
	if len(s) != 10 {
		return 0, errors.Errorf("serial number must be 10 digits, got %q", s)
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "serial number %q is not a valid device serial", s)
	}
	return SerialNumber(n), nil
}

func (s SerialNumber) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// DeviceRef is the result of one advertisement scan: where the device with
// a given serial number can be reached right now. It is only valid for the
// current cycle; the address must be re-resolved before every connection.
type DeviceRef struct {
	Addr   string
	Serial SerialNumber
	RSSI   int
}

// RadonEstimate is one radon average in Bq/m3. The radon sensor needs its
// first full measurement cycle before it produces an estimate; until then
// the device reports an out-of-range raw value and Valid is false.
type RadonEstimate struct {
	BqM3  uint16
	Valid bool
}

func (r RadonEstimate) String() string {
	if !r.Valid {
		return "N/A"
	}
	return strconv.FormatUint(uint64(r.BqM3), 10)
}

func (r RadonEstimate) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.BqM3)
}

// Reading is one decoded sample of all sensors.
type Reading struct {
	// units: % of relative humidity
	Humidity float32 `json:"humidity_pct"`

	// units: Bq/m3, 24h rolling average
	RadonShort RadonEstimate `json:"radon_short_bq_m3"`

	// units: Bq/m3, average since first power-on
	RadonLong RadonEstimate `json:"radon_long_bq_m3"`

	// units: degrees Celsius
	Temperature float32 `json:"temperature_c"`

	// units: hPa
	AtmPressure float32 `json:"pressure_hpa"`

	// units: ppm
	Co2Level uint16 `json:"co2_ppm"`

	// units: ppb
	VocLevel uint16 `json:"voc_ppb"`
}
