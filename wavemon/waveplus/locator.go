package waveplus

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"

	"github.com/avoznyak/wavemon/wavemon"
)

// airthingsCompanyID is the Bluetooth SIG company identifier carried in the
// first two bytes of the manufacturer data, followed by the 32-bit serial.
const airthingsCompanyID = 0x0334

// BleLocator finds a device by the serial number embedded in its
// advertisement, without connecting.
type BleLocator struct {
	ScanTimeout time.Duration

	// scan is replaced in tests; defaults to ble.Scan on the default device.
	scan func(ctx context.Context, h ble.AdvHandler, f ble.AdvFilter) error
}

// Locate passively scans for up to ScanTimeout and returns the address of
// the first advertisement whose embedded serial equals the requested one.
// Scanning stops as soon as a match is seen.
func (l *BleLocator) Locate(ctx context.Context, serial wavemon.SerialNumber) (wavemon.DeviceRef, error) {
	ctx, cancel := context.WithTimeout(ctx, l.scanTimeout())
	defer cancel()

	found := make(chan wavemon.DeviceRef, 1)
	handler := func(a ble.Advertisement) {
		ref, ok := matchAdvertisement(a, serial)
		if !ok {
			return
		}
		select {
		case found <- ref:
			cancel()
		default:
		}
	}

	err := l.doScan(ctx, handler, isAirthingsAdv)

	select {
	case ref := <-found:
		return ref, nil
	default:
	}

	switch errors.Cause(err) {
	case nil, context.Canceled, context.DeadlineExceeded:
		return wavemon.DeviceRef{}, errors.Wrapf(wavemon.ErrDeviceNotFound,
			"serial %s not advertised within %s", serial, l.scanTimeout())
	default:
		return wavemon.DeviceRef{}, errors.Wrapf(wavemon.ErrScanUnavailable, "scan failed: %s", err)
	}
}

func (l *BleLocator) doScan(ctx context.Context, h ble.AdvHandler, f ble.AdvFilter) error {
	if l.scan != nil {
		return l.scan(ctx, h, f)
	}
	return ble.Scan(ctx, false, h, f)
}

func (l *BleLocator) scanTimeout() time.Duration {
	if l.ScanTimeout > 0 {
		return l.ScanTimeout
	}
	return 10 * time.Second
}

// isAirthingsAdv keeps only connectable advertisements carrying Airthings
// manufacturer data. Everything else on the air is ignored.
func isAirthingsAdv(a ble.Advertisement) bool {
	if !a.Connectable() {
		return false
	}
	_, ok := serialFromManufacturerData(a.ManufacturerData())
	return ok
}

func matchAdvertisement(a ble.Advertisement, serial wavemon.SerialNumber) (wavemon.DeviceRef, bool) {
	sn, ok := serialFromManufacturerData(a.ManufacturerData())
	if !ok || sn != serial {
		return wavemon.DeviceRef{}, false
	}
	return wavemon.DeviceRef{
		Addr:   a.Addr().String(),
		Serial: sn,
		RSSI:   a.RSSI(),
	}, true
}

func serialFromManufacturerData(md []byte) (wavemon.SerialNumber, bool) {
	if len(md) < 6 {
		return 0, false
	}
	if binary.LittleEndian.Uint16(md[0:2]) != airthingsCompanyID {
		return 0, false
	}
	return wavemon.SerialNumber(binary.LittleEndian.Uint32(md[2:6])), true
}
