package wavemon

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MinPollInterval is the floor for the polling interval. The device only
// refreshes its sensor registers every 5 minutes (radon even hourly), so
// reading faster than that just returns the same bytes again.
const MinPollInterval = 5 * time.Minute

// Locator resolves a serial number to a connectable BLE address by
// observing advertisements.
type Locator interface {
	Locate(ctx context.Context, serial SerialNumber) (DeviceRef, error)
}

// Reader obtains one decoded sample from the device at addr. A fresh
// connection is opened and closed per call.
type Reader interface {
	Read(ctx context.Context, addr string) (Reading, error)
}

// Sink consumes one decoded reading per successful cycle.
type Sink func(Reading)

// ErrorReporter consumes one structured error per failed cycle.
type ErrorReporter func(error)

// Poller runs the locate/connect/read/decode cycle on a fixed interval.
// Failed cycles are reported and skipped; the loop only stops when ctx is
// cancelled. Cycles run strictly sequentially, and no session state is
// carried across the inter-cycle sleep.
type Poller struct {
	Locator  Locator
	Reader   Reader
	Interval time.Duration

	// Report receives cycle failures. Defaults to a logrus error line.
	Report ErrorReporter

	// floor overrides MinPollInterval in tests.
	floor time.Duration
}

// Run polls the device with the given serial until ctx is cancelled and
// returns the cancellation cause. Successive reads are never started
// closer together than the effective interval.
func (p *Poller) Run(ctx context.Context, serial SerialNumber, sink Sink) error {
	interval := clampInterval(p.Interval, p.minInterval())
	if interval != p.Interval {
		log.Warnf("poll interval %s is below the device refresh cadence, clamped to %s", p.Interval, interval)
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		reading, err := p.poll(ctx, serial)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.report(err)
			continue
		}
		sink(reading)
	}
}

func (p *Poller) poll(ctx context.Context, serial SerialNumber) (Reading, error) {
	ref, err := p.Locator.Locate(ctx, serial)
	if err != nil {
		return Reading{}, errors.Wrapf(err, "locate device %s", serial)
	}
	log.Debugf("device %s advertised at %s (rssi %d)", serial, ref.Addr, ref.RSSI)

	reading, err := p.Reader.Read(ctx, ref.Addr)
	if err != nil {
		return Reading{}, errors.Wrapf(err, "read device %s at %s", serial, ref.Addr)
	}
	return reading, nil
}

func (p *Poller) report(err error) {
	if p.Report != nil {
		p.Report(err)
		return
	}
	log.Errorf("poll cycle failed (%s): %s", Kind(err), err)
}

func (p *Poller) minInterval() time.Duration {
	if p.floor > 0 {
		return p.floor
	}
	return MinPollInterval
}

func clampInterval(interval, floor time.Duration) time.Duration {
	if interval < floor {
		return floor
	}
	return interval
}
