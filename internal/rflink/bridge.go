package rflink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one command's full repeat schedule.
	commandTimeout = 10 * time.Second

	// linkPollInterval is how often session statuses are reconciled with
	// the serial link state.
	linkPollInterval = 2 * time.Second
)

// Bridge orchestrates bidirectional translation between the RFLink
// transceiver and MQTT. It handles:
//   - Receiving commands from Core via MQTT and transmitting them over RF
//   - Receiving RF frames and publishing state updates to MQTT
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt        MQTTClient
	transceiver Transport
	health      *HealthReporter
	telemetry   TelemetryWriter

	// Stats mirroring, set when the telemetry sink also accepts link counters
	statsSink    StatsWriter
	serialDevice string

	// Sessions keyed by device ID (built from config, fixed after Start)
	sessions map[string]*Session

	// Last published outputs per device, for change detection. RF devices
	// transmit each frame several times; without this every repeat would
	// republish identical state.
	stateCache   map[string]map[string]any
	stateCacheMu sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// TelemetryWriter receives numeric channel values for time-series storage.
// This is optional - if nil, the bridge operates without telemetry.
type TelemetryWriter interface {
	// WriteDeviceValue records one numeric channel reading for a device.
	WriteDeviceValue(deviceID, deviceClass, channel string, value float64)
}

// StatsWriter receives serial link counters for time-series storage.
// A telemetry sink that also implements StatsWriter gets link statistics
// mirrored alongside device readings.
type StatsWriter interface {
	// WriteBridgeStats records link counters for a serial device.
	WriteBridgeStats(device string, linesRx, linesTx, errors uint64)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Devices is the per-device session configuration.
	Devices []SessionConfig

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Transceiver is the serial link to the RFLink gateway.
	Transceiver Transport

	// Version is the bridge software version for health reporting.
	Version string

	// SerialDevice is the serial port path for health reporting.
	SerialDevice string

	// HealthInterval is how often health status is published.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger

	// Telemetry is optional time-series storage for numeric readings.
	// If nil, the bridge operates without telemetry.
	Telemetry TelemetryWriter
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Transceiver == nil {
		return nil, fmt.Errorf("transceiver is required")
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:         opts.MQTTClient,
		transceiver:  opts.Transceiver,
		telemetry:    opts.Telemetry, // May be nil (optional)
		serialDevice: opts.SerialDevice,
		sessions:     make(map[string]*Session),
		stateCache:   make(map[string]map[string]any),
		done:         make(chan struct{}),
		ctx:          ctx,
		ctxCancel:    ctxCancel,
		logger:       opts.Logger,
	}
	if sw, ok := opts.Telemetry.(StatsWriter); ok {
		b.statsSink = sw
	}

	for _, dc := range opts.Devices {
		if _, exists := b.sessions[dc.DeviceID]; exists {
			ctxCancel()
			return nil, fmt.Errorf("duplicate device ID %q", dc.DeviceID)
		}
		s := NewSession(dc, opts.Transceiver, b)
		if opts.Logger != nil {
			s.SetLogger(opts.Logger)
		}
		if s.Status() == StatusOfflineConfigError {
			b.logError("device configuration rejected",
				fmt.Errorf("device %s: %w", dc.DeviceID, s.configErr))
		}
		b.sessions[dc.DeviceID] = s
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:      opts.Version,
		SerialDevice: opts.SerialDevice,
		Interval:     opts.HealthInterval,
		Publisher:    opts.MQTTClient,
		Transceiver:  opts.Transceiver,
	})
	b.health.SetDeviceCount(len(b.sessions))
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation.
// This subscribes to MQTT command topics, sets up the serial line handler,
// and starts health and link monitoring.
func (b *Bridge) Start(ctx context.Context) error {
	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Set up serial line handler
	b.transceiver.SetOnLine(b.handleLine)

	// Subscribe to command topics
	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Reflect current link state onto sessions, then keep reconciling
	b.reconcileLinkState()
	b.wg.Add(1)
	go b.linkMonitorLoop()

	// Start health reporting
	b.health.Start(ctx)

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started", "devices", len(b.sessions))
	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for pending operations
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// Session returns the session for a device ID, nil if not configured.
func (b *Bridge) Session(deviceID string) *Session {
	return b.sessions[deviceID]
}

// linkMonitorLoop reconciles session statuses with the serial link state.
func (b *Bridge) linkMonitorLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(linkPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.reconcileLinkState()
		}
	}
}

func (b *Bridge) reconcileLinkState() {
	up := b.transceiver.IsConnected()
	for _, s := range b.sessions {
		s.SetLinkUp(up)
	}

	if b.statsSink != nil {
		stats := b.transceiver.Stats()
		b.statsSink.WriteBridgeStats(b.serialDevice, stats.LinesRx, stats.LinesTx, stats.ErrorsTotal)
	}
}

// handleLine processes one received protocol line.
//
// Decode-path failures are routine on a shared radio band (foreign
// protocols, corrupted frames), so they are logged at debug level and
// dropped, never escalated.
func (b *Bridge) handleLine(line string) {
	frame, err := ParseFrame(line)
	if err != nil {
		b.logDebug("dropping unparseable line", "line", line, "error", err)
		return
	}

	if frame.IsControl() {
		b.logDebug("control frame", "line", line)
		return
	}

	msg, err := ForDecoding(frame)
	if err != nil {
		b.logDebug("no variant for frame", "protocol", frame.Protocol, "error", err)
		return
	}

	if err := msg.Decode(frame); err != nil {
		b.logDebug("frame decode failed", "protocol", frame.Protocol, "error", err)
		return
	}
	for _, w := range msg.Warnings() {
		b.logDebug("partial decode", "device_id", msg.DeviceID(), "warning", w)
	}

	matched := false
	for _, s := range b.sessions {
		if s.HandleInbound(b.ctx, msg) {
			matched = true
			break
		}
	}
	if !matched {
		b.logDebug("frame from unconfigured device", "device_id", msg.DeviceID())
	}
}

// PublishState publishes decoded device state to MQTT and mirrors numeric
// readings to telemetry. Implements StatePublisher for sessions.
//
// Identical consecutive states are suppressed: RF devices repeat each frame
// several times and every repeat decodes to the same outputs.
func (b *Bridge) PublishState(ctx context.Context, deviceID, deviceClass string, outputs map[string]any) error {
	if b.stateUnchanged(deviceID, outputs) {
		return nil
	}

	msg := NewStateMessage(deviceID, outputs)
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := b.mqtt.Publish(StateTopic(deviceID), payload, 1, true); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}

	b.writeTelemetry(deviceID, deviceClass, outputs)
	return nil
}

// writeTelemetry mirrors numeric channel values to the telemetry sink.
func (b *Bridge) writeTelemetry(deviceID, deviceClass string, outputs map[string]any) {
	if b.telemetry == nil {
		return
	}
	for channel, value := range outputs {
		switch v := value.(type) {
		case float64:
			b.telemetry.WriteDeviceValue(deviceID, deviceClass, channel, v)
		case int:
			b.telemetry.WriteDeviceValue(deviceID, deviceClass, channel, float64(v))
		case uint64:
			b.telemetry.WriteDeviceValue(deviceID, deviceClass, channel, float64(v))
		}
	}
}

// stateUnchanged checks if the new outputs match the cached state.
// Returns true if unchanged (should skip publish).
func (b *Bridge) stateUnchanged(deviceID string, outputs map[string]any) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	cached, ok := b.stateCache[deviceID]
	if ok && outputsEqual(cached, outputs) {
		return true
	}

	b.stateCache[deviceID] = outputs
	return false
}

// outputsEqual compares two output maps. Values are comparable scalars
// (strings, numbers, bools), so direct comparison is safe.
func outputsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || av != bv {
			return false
		}
	}
	return true
}

// handleMQTTMessage routes an incoming command message.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}

	// Senders may omit the correlation ID; assign one so acks stay traceable.
	if cmd.ID == "" {
		cmd.ID = NewCommandID()
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	session, ok := b.sessions[cmd.DeviceID]
	if !ok {
		b.publishAckError(cmd, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", cmd.DeviceID))
		return
	}

	// Execute asynchronously: the repeat schedule can span a second or
	// more and must not block the MQTT receive path.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.executeCommand(session, cmd)
	}()
}

// executeCommand translates a command message and transmits it.
func (b *Bridge) executeCommand(session *Session, cmd CommandMessage) {
	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	channel, domainCmd, err := translateCommand(cmd)
	if err != nil {
		b.publishAckError(cmd, ErrCodeInvalidParameters, err.Error())
		return
	}

	if err := session.Send(ctx, channel, domainCmd); err != nil {
		b.logError("command execution failed", err)
		b.publishAckError(cmd, ackCodeForError(err), err.Error())
		return
	}

	b.publishAck(cmd, AckAccepted)
}

// translateCommand maps a command message onto a channel and domain command.
func translateCommand(cmd CommandMessage) (string, Command, error) {
	channel := ""
	if raw, ok := cmd.Parameters["channel"]; ok {
		s, ok := raw.(string)
		if !ok {
			return "", Command{}, fmt.Errorf("'channel' must be a string")
		}
		channel = s
	}

	switch cmd.Command {
	case ActionOn, ActionOff, ActionUp, ActionDown, ActionStop:
		return channel, Command{Action: cmd.Command}, nil
	case ActionDim:
		raw, ok := cmd.Parameters["level"]
		if !ok {
			return "", Command{}, fmt.Errorf("missing 'level' parameter")
		}
		level, ok := raw.(float64)
		if !ok {
			return "", Command{}, fmt.Errorf("'level' must be a number")
		}
		if level < dimLevelMin || level > dimLevelMax {
			return "", Command{}, fmt.Errorf("'level' must be %d-%d, got %g", dimLevelMin, dimLevelMax, level)
		}
		return channel, Command{Action: ActionDim, Level: int(level)}, nil
	default:
		return "", Command{}, fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

// ackCodeForError maps a send failure onto an acknowledgment error code.
func ackCodeForError(err error) string {
	switch {
	case isAny(err, ErrUnsupportedCommand, ErrUnsupportedMessageType):
		return ErrCodeInvalidCommand
	case isAny(err, ErrUnknownDevice):
		return ErrCodeNotConfigured
	case isAny(err, ErrSendFailed, ErrNotConnected):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, status AckStatus) {
	ack := NewAckMessage(cmd, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	if err := b.mqtt.Publish(AckTopic(cmd.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	ack := NewAckError(cmd, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	if err := b.mqtt.Publish(AckTopic(cmd.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
