package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"

	"github.com/avoznyak/wavemon/wavemon"
	"github.com/avoznyak/wavemon/wavemon/mqtt"
	"github.com/avoznyak/wavemon/wavemon/waveplus"
)

// CLI args
var (
	serialArg    = pflag.String("serial", "", "10-digit serial number printed on the device backplate (required)")
	pollInterval = pflag.Duration("poll-int", 5*time.Minute, "time interval between sensor reads, floor 5m")
	scanTimeout  = pflag.Duration("scan-timeout", 10*time.Second, "how long to scan for the device advertisement")
	connTimeout  = pflag.Duration("connect-timeout", 10*time.Second, "per-attempt connection timeout")
	retries      = pflag.Int("retries", waveplus.DefaultRetries, "connection attempts per cycle in case of BLE errors")
	retryBackoff = pflag.Duration("retry-backoff", 2*time.Second, "pause between connection attempts")
	listenAddr   = pflag.String("listen-address", ":8080", "the address to serve Prometheus metrics on")
	mqttBroker   = pflag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (publishing disabled when empty)")
	mqttTopic    = pflag.String("mqtt-topic", "wavemon", "MQTT topic prefix for published readings")
	mqttClientID = pflag.String("mqtt-client-id", "wavemon", "MQTT client id")
	mqttUsername = pflag.String("mqtt-username", "", "MQTT username")
	mqttPassword = pflag.String("mqtt-password", "", "MQTT password")
)

// metrics to expose to Prometheus
var (
	gaugeHumidity    = newGauge("air_humidity", "Humidity (units: % of relative Humidity)")
	gaugeRadonShort  = newGauge("air_radon_short", "Radon Short Term estimate (units: Bq/m3)")
	gaugeRadonLong   = newGauge("air_radon_long", "Radon Long Term estimate (units: Bq/m3)")
	gaugeTemperature = newGauge("air_temperature", "Air Temperature (units: degrees Celsius)")
	gaugeAtmPressure = newGauge("air_atm_pressure", "Atmospheric Pressure (units: hPa)")
	gaugeCo2Level    = newGauge("air_co2_level", "Air Carbon Dioxide level (units: ppm)")
	gaugeVocLevel    = newGauge("air_voc_level", "Air Volatile Organic Compounds level (units: ppb)")

	counterReads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "air_reads_total",
		Help: "Successful poll cycles",
	}, []string{"serial_number"})
	counterFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "air_poll_failures_total",
		Help: "Failed poll cycles by failure kind",
	}, []string{"serial_number", "kind"})
)

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"serial_number"},
	)
}

func init() {
	prometheus.MustRegister(gaugeHumidity)
	prometheus.MustRegister(gaugeRadonShort)
	prometheus.MustRegister(gaugeRadonLong)
	prometheus.MustRegister(gaugeTemperature)
	prometheus.MustRegister(gaugeAtmPressure)
	prometheus.MustRegister(gaugeCo2Level)
	prometheus.MustRegister(gaugeVocLevel)
	prometheus.MustRegister(counterReads)
	prometheus.MustRegister(counterFailures)

	prometheus.MustRegister(prometheus.NewBuildInfoCollector())
	prometheus.MustRegister(version.NewCollector("wavemon"))

	// logging
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
}

func main() {
	pflag.Parse()

	serial, err := wavemon.ParseSerial(*serialArg)
	if err != nil {
		log.Fatalf("invalid --serial: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		// Expose the registered metrics via HTTP.
		http.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
			},
		))
		log.Panic(http.ListenAndServe(*listenAddr, nil))
	}()

	// open BLE
	dev, err := linux.NewDevice()
	if err != nil {
		log.Fatalf("failed to open bluetooth device: %s", err)
	}
	ble.SetDefaultDevice(dev)
	defer func() { _ = ble.Stop() }()

	sink := readingSink(serial)
	if *mqttBroker != "" {
		publisher := mqtt.NewPublisher(mqtt.Options{
			BrokerURL:   *mqttBroker,
			ClientID:    *mqttClientID,
			TopicPrefix: *mqttTopic,
			Username:    *mqttUsername,
			Password:    *mqttPassword,
		})
		if err := publisher.Connect(ctx); err != nil {
			log.Fatalf("failed to connect to mqtt broker: %s", err)
		}
		defer publisher.Close()

		deliver := sink
		sink = func(reading wavemon.Reading) {
			deliver(reading)
			if err := publisher.Publish(serial, reading); err != nil {
				log.Errorf("failed to publish reading: %s", err)
			}
		}
	}

	poller := &wavemon.Poller{
		Locator: &waveplus.BleLocator{ScanTimeout: *scanTimeout},
		Reader: &waveplus.SensorReader{
			Sessions: &waveplus.SessionManager{
				ConnectTimeout: *connTimeout,
				Retries:        *retries,
				Backoff:        *retryBackoff,
			},
		},
		Interval: *pollInterval,
		Report:   reportFailure(serial),
	}

	log.Infof("polling device %s every %s", serial, *pollInterval)
	if err := poller.Run(ctx, serial, sink); err != nil && ctx.Err() == nil {
		log.Fatalf("poller stopped: %s", err)
	}
	log.Info("shutting down")
}

// readingSink logs each decoded reading and updates the Prometheus gauges.
// Radon gauges are only set while the device reports a valid estimate, so
// scrapes see missing data points instead of bogus zeroes.
func readingSink(serial wavemon.SerialNumber) wavemon.Sink {
	sn := serial.String()
	return func(reading wavemon.Reading) {
		if data, err := json.Marshal(reading); err == nil {
			log.Infof("received from %s: %s", sn, data)
		}

		gaugeHumidity.WithLabelValues(sn).Set(float64(reading.Humidity))
		if reading.RadonShort.Valid {
			gaugeRadonShort.WithLabelValues(sn).Set(float64(reading.RadonShort.BqM3))
		}
		if reading.RadonLong.Valid {
			gaugeRadonLong.WithLabelValues(sn).Set(float64(reading.RadonLong.BqM3))
		}
		gaugeTemperature.WithLabelValues(sn).Set(float64(reading.Temperature))
		gaugeAtmPressure.WithLabelValues(sn).Set(float64(reading.AtmPressure))
		gaugeCo2Level.WithLabelValues(sn).Set(float64(reading.Co2Level))
		gaugeVocLevel.WithLabelValues(sn).Set(float64(reading.VocLevel))
		counterReads.WithLabelValues(sn).Inc()
	}
}

func reportFailure(serial wavemon.SerialNumber) wavemon.ErrorReporter {
	sn := serial.String()
	return func(err error) {
		kind := wavemon.Kind(err)
		counterFailures.WithLabelValues(sn, kind).Inc()
		log.Errorf("poll cycle failed (%s): %s", kind, err)
	}
}
