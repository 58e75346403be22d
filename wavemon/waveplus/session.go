package waveplus

import (
	"context"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/avoznyak/wavemon/wavemon"
)

var (
	sensorServiceUUID = ble.MustParse("b42e1c08ade711e489d3123b93f75cba")
	currentValuesUUID = ble.MustParse("b42e2a68ade711e489d3123b93f75cba")
)

// DefaultRetries is the per-cycle connection attempt bound when
// SessionManager.Retries is left zero.
const DefaultRetries = 3

// gattClient is the slice of ble.Client a session needs.
type gattClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// Session is one live connection to a device. It owns the connection
// exclusively and must not outlive the WithSession call that produced it.
type Session struct {
	cln gattClient
}

// ReadCharacteristic reads the raw value of charUUID under svcUUID. A
// missing service or characteristic means the peer is not a supported
// device and surfaces as wavemon.ErrCharacteristicMissing; discovery and
// read I/O errors are transient.
func (s *Session) ReadCharacteristic(svcUUID, charUUID ble.UUID) ([]byte, error) {
	services, err := s.cln.DiscoverServices([]ble.UUID{svcUUID})
	if err != nil {
		return nil, errors.Wrap(err, "discover services")
	}
	if len(services) == 0 {
		return nil, errors.Wrapf(wavemon.ErrCharacteristicMissing, "service %s not present", svcUUID)
	}

	characteristics, err := s.cln.DiscoverCharacteristics([]ble.UUID{charUUID}, services[0])
	if err != nil {
		return nil, errors.Wrap(err, "discover characteristics")
	}
	if len(characteristics) == 0 {
		return nil, errors.Wrapf(wavemon.ErrCharacteristicMissing, "characteristic %s not present", charUUID)
	}

	raw, err := s.cln.ReadCharacteristic(characteristics[0])
	if err != nil {
		return nil, errors.Wrap(err, "read characteristic")
	}
	return raw, nil
}

// SessionManager opens scoped connections to a located address. Transient
// failures are retried up to Retries times with a fixed Backoff; permanent
// failures propagate immediately. All retry state is local to one call.
type SessionManager struct {
	ConnectTimeout time.Duration
	Retries        int
	Backoff        time.Duration

	// dial is replaced in tests; defaults to ble.Connect on the default device.
	dial func(ctx context.Context, addr string) (gattClient, error)
}

// WithSession connects to addr, invokes body with the live session and
// disconnects on every exit path before returning.
func (m *SessionManager) WithSession(ctx context.Context, addr string, body func(*Session) error) error {
	var lastErr error
	for attempt := 0; attempt < m.retries(); attempt++ {
		if attempt > 0 {
			log.Warnf("retrying transient session error: %s", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.Backoff):
			}
		}

		err := m.once(ctx, addr, body)
		if err == nil {
			return nil
		}
		if wavemon.Permanent(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return errors.Wrap(lastErr, "session attempts exhausted")
}

func (m *SessionManager) once(ctx context.Context, addr string, body func(*Session) error) error {
	connectCtx, cancel := context.WithTimeout(ctx, m.connectTimeout())
	defer cancel()

	cln, err := m.connect(connectCtx, addr)
	if err != nil {
		return errors.Wrapf(err, "connect to %s", addr)
	}

	// The peripheral may also drop the link on its own. Wait for the
	// disconnect event before declaring the connection slot free again.
	done := make(chan struct{})
	go func() {
		<-cln.Disconnected()
		log.Debugf("disconnected from %s", addr)
		close(done)
	}()
	defer func() {
		_ = cln.CancelConnection()
		<-done
	}()

	return body(&Session{cln: cln})
}

func (m *SessionManager) connect(ctx context.Context, addr string) (gattClient, error) {
	if m.dial != nil {
		return m.dial(ctx, addr)
	}
	return ble.Connect(ctx, func(a ble.Advertisement) bool {
		return strings.EqualFold(a.Addr().String(), addr)
	})
}

func (m *SessionManager) retries() int {
	if m.Retries > 0 {
		return m.Retries
	}
	return DefaultRetries
}

func (m *SessionManager) connectTimeout() time.Duration {
	if m.ConnectTimeout > 0 {
		return m.ConnectTimeout
	}
	return 10 * time.Second
}

// SensorReader reads and decodes one sample per call, opening a fresh
// session every time. It implements wavemon.Reader.
type SensorReader struct {
	Sessions *SessionManager
}

func (r *SensorReader) Read(ctx context.Context, addr string) (wavemon.Reading, error) {
	var reading wavemon.Reading
	err := r.Sessions.WithSession(ctx, addr, func(s *Session) error {
		raw, err := s.ReadCharacteristic(sensorServiceUUID, currentValuesUUID)
		if err != nil {
			return err
		}
		decoded, err := Decode(raw)
		if err != nil {
			return err
		}
		reading = decoded
		return nil
	})
	return reading, err
}
