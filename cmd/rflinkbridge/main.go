// Gray Logic RFLink Bridge
//
// This is the main entry point for the RFLink protocol bridge. It connects
// an RFLink 433MHz gateway (Arduino Mega running the RFLink firmware) to the
// Gray Logic MQTT bus:
//   - Decodes inbound RF frames into device state messages
//   - Translates MQTT commands into RFLink transmit frames
//   - Publishes bridge health and serial link statistics
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-rflink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rflink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rflink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rflink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rflink/internal/rflink"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic RFLink bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker with the offline health message as last will,
	// so subscribers learn about unexpected bridge death from the broker.
	will, err := buildWill()
	if err != nil {
		return fmt.Errorf("building LWT payload: %w", err)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Open the serial link to the RFLink gateway. The transceiver keeps
	// retrying in the background if the gateway is unplugged.
	transceiver, err := rflink.OpenTransceiver(ctx, rflink.SerialConfig{
		Device:            cfg.Serial.Device,
		BaudRate:          cfg.Serial.BaudRate,
		ReconnectInterval: cfg.GetSerialReconnectInterval(),
	})
	if err != nil {
		return fmt.Errorf("opening serial link: %w", err)
	}
	defer func() {
		log.Info("closing serial link")
		if closeErr := transceiver.Close(); closeErr != nil {
			log.Error("error closing serial link", "error", closeErr)
		}
	}()
	transceiver.SetLogger(log)
	log.Info("serial link opened",
		"device", cfg.Serial.Device,
		"baud_rate", cfg.Serial.BaudRate,
	)

	// Connect to InfluxDB (optional)
	var telemetry rflink.TelemetryWriter
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create and start the bridge
	bridge, err := rflink.NewBridge(rflink.BridgeOptions{
		Devices:        cfg.SessionConfigs(),
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		Transceiver:    transceiver,
		Version:        version,
		SerialDevice:   cfg.Serial.Device,
		HealthInterval: cfg.GetHealthInterval(),
		Logger:         log,
		Telemetry:      telemetry,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()
	log.Info("bridge started", "devices", len(cfg.Devices))

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Bridge (publishes stopping health status)
	// 2. InfluxDB (if enabled)
	// 3. Serial link
	// 4. MQTT

	log.Info("Gray Logic RFLink bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RFLINK_BRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RFLINK_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildWill constructs the MQTT last-will message: an offline health status
// published by the broker if the bridge dies without a clean disconnect.
func buildWill() (*mqtt.WillMessage, error) {
	payload, err := json.Marshal(rflink.NewLWTMessage())
	if err != nil {
		return nil, err
	}

	return &mqtt.WillMessage{
		Topic:    rflink.HealthTopic(),
		Payload:  payload,
		QoS:      1,
		Retained: true,
	}, nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler
// signature:
//   - Infrastructure mqtt: func(topic string, payload []byte) error
//   - Bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements rflink.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements rflink.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements rflink.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements rflink.MQTTClient.
// The MQTT client lifecycle is owned by run()'s defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
