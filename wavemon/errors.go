package wavemon

import "github.com/pkg/errors"

// Sentinel causes for the failure modes of a poll cycle. Implementations
// wrap these with errors.Wrapf so callers can classify with errors.Cause.
var (
	// ErrUnexpectedFormat means the payload length or format version byte
	// did not match the single format this decoder supports.
	ErrUnexpectedFormat = errors.New("unexpected sensor payload format")

	// ErrDeviceNotFound means no advertisement with the requested serial
	// number was observed within the scan timeout.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrScanUnavailable means the radio could not be placed into scan
	// mode (adapter off, missing capabilities).
	ErrScanUnavailable = errors.New("bluetooth scan unavailable")

	// ErrCharacteristicMissing means the connected device does not expose
	// the expected GATT characteristic, i.e. it is not a supported model.
	ErrCharacteristicMissing = errors.New("sensor characteristic missing")
)

// Permanent reports whether err must not be retried within a cycle.
// Everything else is treated as a transient BLE failure.
func Permanent(err error) bool {
	switch errors.Cause(err) {
	case ErrUnexpectedFormat, ErrCharacteristicMissing:
		return true
	}
	return false
}

// Kind names the failure class of a cycle error, for error reporting and
// metric labels.
func Kind(err error) string {
	switch errors.Cause(err) {
	case ErrUnexpectedFormat:
		return "unexpected_format"
	case ErrDeviceNotFound:
		return "device_not_found"
	case ErrScanUnavailable:
		return "scan_unavailable"
	case ErrCharacteristicMissing:
		return "characteristic_missing"
	}
	return "transient"
}
