// Package mqtt publishes decoded readings to an MQTT broker, one JSON
// message per poll cycle on <prefix>/<serial>/reading.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/avoznyak/wavemon/wavemon"
)

const (
	connectPoll    = 200 * time.Millisecond
	publishTimeout = 5 * time.Second
)

type Options struct {
	BrokerURL   string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// Publisher is a thin wrapper over a paho client with auto-reconnect.
type Publisher struct {
	cli    paho.Client
	prefix string
}

func NewPublisher(opts Options) *Publisher {
	cfg := paho.NewClientOptions()
	cfg.AddBroker(opts.BrokerURL)
	cfg.SetClientID(opts.ClientID)
	if opts.Username != "" {
		cfg.SetUsername(opts.Username)
		cfg.SetPassword(opts.Password)
	}

	cfg.SetCleanSession(true)
	cfg.SetAutoReconnect(true)
	cfg.SetConnectRetry(true)
	cfg.SetConnectRetryInterval(5 * time.Second)
	cfg.SetMaxReconnectInterval(60 * time.Second)
	cfg.SetKeepAlive(30 * time.Second)
	cfg.SetPingTimeout(10 * time.Second)

	cfg.SetOnConnectHandler(func(paho.Client) {
		log.Infof("mqtt connected to %s", opts.BrokerURL)
	})
	cfg.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnf("mqtt connection lost: %s", err)
	})

	return &Publisher{
		cli:    paho.NewClient(cfg),
		prefix: opts.TopicPrefix,
	}
}

// Connect waits for the initial broker connection or ctx cancellation.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.cli.Connect()
	for {
		if token.WaitTimeout(connectPoll) {
			return errors.Wrap(token.Error(), "mqtt connect")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Publish sends one reading at QoS 1.
func (p *Publisher) Publish(serial wavemon.SerialNumber, reading wavemon.Reading) error {
	payload, err := encodeMessage(serial, reading, time.Now())
	if err != nil {
		return errors.Wrap(err, "marshal reading")
	}

	topic := fmt.Sprintf("%s/%s/reading", p.prefix, serial)
	token := p.cli.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s timed out", topic)
	}
	return errors.Wrapf(token.Error(), "publish to %s", topic)
}

// Close disconnects from the broker, letting in-flight work quiesce.
func (p *Publisher) Close() {
	p.cli.Disconnect(250)
}

type message struct {
	SerialNumber string    `json:"serial_number"`
	Timestamp    time.Time `json:"timestamp"`
	wavemon.Reading
}

func encodeMessage(serial wavemon.SerialNumber, reading wavemon.Reading, ts time.Time) ([]byte, error) {
	return json.Marshal(message{
		SerialNumber: serial.String(),
		Timestamp:    ts.UTC(),
		Reading:      reading,
	})
}
