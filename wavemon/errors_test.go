package wavemon

import (
	"testing"

	"github.com/pkg/errors"
)

func TestPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unexpected format", ErrUnexpectedFormat, true},
		{"wrapped unexpected format", errors.Wrap(ErrUnexpectedFormat, "decode"), true},
		{"characteristic missing", errors.Wrapf(ErrCharacteristicMissing, "service %s", "b42e1c08"), true},
		{"device not found", ErrDeviceNotFound, false},
		{"plain io error", errors.New("connection reset"), false},
		{"wrapped io error", errors.Wrap(errors.New("timeout"), "read characteristic"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Permanent(tt.err); got != tt.want {
				t.Errorf("Permanent: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unexpected format", errors.Wrap(ErrUnexpectedFormat, "decode"), "unexpected_format"},
		{"device not found", errors.Wrap(ErrDeviceNotFound, "locate"), "device_not_found"},
		{"scan unavailable", errors.Wrap(ErrScanUnavailable, "locate"), "scan_unavailable"},
		{"characteristic missing", errors.Wrap(ErrCharacteristicMissing, "read"), "characteristic_missing"},
		{"anything else", errors.New("connection reset"), "transient"},
		{"double wrap", errors.Wrap(errors.Wrap(ErrDeviceNotFound, "inner"), "outer"), "device_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind: got %q, want %q", got, tt.want)
			}
		})
	}
}
