package rflink

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Repeat policy bounds. RF is fire-and-forget: repeating a command raises
// the chance at least one transmission lands, but too many repeats hog the
// shared band.
const (
	minRepeats = 1
	maxRepeats = 20

	// defaultRepeatDelay is the pause before each repeat after the first.
	defaultRepeatDelay = 50 * time.Millisecond
)

// Send-failure policies for the repeat loop.
const (
	// FailureContinue logs a failed transmission and keeps the repeat
	// schedule. Later repeats may still land.
	FailureContinue = "continue"

	// FailureAbort stops the repeat loop on the first failed transmission.
	FailureAbort = "abort"
)

// SessionStatus is the reachability state of one configured device.
type SessionStatus string

const (
	// StatusOfflineConfigError marks a device whose configuration failed
	// validation. The session never transmits.
	StatusOfflineConfigError SessionStatus = "offline_config_error"

	// StatusOfflineBridge marks a device unreachable because the serial
	// link to the transceiver is down.
	StatusOfflineBridge SessionStatus = "offline_bridge"

	// StatusOnline marks a device reachable through a connected link.
	StatusOnline SessionStatus = "online"
)

// LineWriter is the outbound half of the transport, narrowed so tests can
// substitute a recording fake.
type LineWriter interface {
	WriteLine(ctx context.Context, line string) error
}

// StatePublisher receives decoded device state from sessions. Implemented
// by the bridge, faked in tests.
type StatePublisher interface {
	PublishState(ctx context.Context, deviceID, deviceClass string, outputs map[string]any) error
}

// SessionConfig holds the per-device settings a Session runs with.
type SessionConfig struct {
	// DeviceID is the normalised device identity, e.g. "newkaku-00004d-1".
	DeviceID string

	// Class is the device class ("switch", "dimmer", ...).
	Class string

	// Repeats is the number of transmissions per command, clamped to
	// [1, 20]. Zero means the default of 1.
	Repeats int

	// RepeatDelay is the pause before each repeat after the first.
	// Zero means the default of 50ms.
	RepeatDelay time.Duration

	// OnSendFailure is the repeat-loop policy when a transmission fails:
	// FailureContinue (default) or FailureAbort.
	OnSendFailure string
}

// Session coordinates one configured device: it matches inbound decoded
// messages against the device identity, publishes state on match, and runs
// the outbound encode-and-repeat path for commands.
//
// Thread Safety: all methods are safe for concurrent use. Send serialises
// per session, so repeats of one command are never interleaved with repeats
// of the next command to the same device.
type Session struct {
	cfg  SessionConfig
	addr DeviceAddress

	writer    LineWriter
	publisher StatePublisher

	// configErr is the validation failure that put the session into
	// StatusOfflineConfigError, nil for valid sessions.
	configErr error

	mu       sync.Mutex
	status   SessionStatus
	lastSeen time.Time

	// sendMu keeps one command's repeat schedule from interleaving with
	// the next command to the same device.
	sendMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession builds a session for one configured device.
//
// Configuration problems (unparseable device ID, unknown class) do not fail
// construction: the session is returned in StatusOfflineConfigError and
// refuses to transmit, so one bad device never takes the bridge down.
func NewSession(cfg SessionConfig, writer LineWriter, publisher StatePublisher) *Session {
	s := &Session{
		cfg:       cfg,
		writer:    writer,
		publisher: publisher,
		status:    StatusOfflineBridge,
	}

	addr, err := ParseDeviceAddress(cfg.DeviceID)
	if err != nil {
		s.configErr = err
	} else {
		s.addr = addr
	}

	if s.configErr == nil && !classRegistered(cfg.Class) {
		s.configErr = fmt.Errorf("%w: unknown device class %q", ErrUnknownDevice, cfg.Class)
	}

	switch cfg.OnSendFailure {
	case "", FailureContinue, FailureAbort:
	default:
		s.configErr = fmt.Errorf("%w: on_send_failure must be %q or %q, got %q",
			ErrUnknownDevice, FailureContinue, FailureAbort, cfg.OnSendFailure)
	}

	if s.configErr != nil {
		s.status = StatusOfflineConfigError
	}
	return s
}

func classRegistered(class string) bool {
	for _, c := range RegisteredClasses() {
		if c == class {
			return true
		}
	}
	return false
}

// SetLogger sets an optional logger for session events.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// DeviceID returns the configured device identity.
func (s *Session) DeviceID() string {
	return s.cfg.DeviceID
}

// Class returns the configured device class.
func (s *Session) Class() string {
	return s.cfg.Class
}

// Status returns the current reachability state.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSeen returns the time of the last matched inbound message, zero if
// the device has never been heard.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetLinkUp reflects serial link state changes onto the session status.
// Config-error sessions stay offline regardless of the link.
func (s *Session) SetLinkUp(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusOfflineConfigError {
		return
	}
	if up {
		s.status = StatusOnline
	} else {
		s.status = StatusOfflineBridge
	}
}

// HandleInbound offers a decoded message to the session. The transport is
// a shared broadcast band, so every session sees every message; only an
// exact device identity match is taken, anything else is silently ignored.
//
// Returns true when the message was for this device.
func (s *Session) HandleInbound(ctx context.Context, msg Message) bool {
	if msg.DeviceID() != s.cfg.DeviceID {
		return false
	}

	s.mu.Lock()
	if s.status != StatusOfflineConfigError {
		s.status = StatusOnline
	}
	s.lastSeen = time.Now()
	s.mu.Unlock()

	outputs := msg.Outputs()
	if len(outputs) == 0 {
		return true
	}
	if s.publisher != nil {
		if err := s.publisher.PublishState(ctx, s.cfg.DeviceID, s.cfg.Class, outputs); err != nil {
			s.logWarn("state publish failed", "device_id", s.cfg.DeviceID, "error", err)
		}
	}
	return true
}

// Send encodes a domain command for this device and transmits it according
// to the repeat policy: the first transmission goes immediately, each
// subsequent one after RepeatDelay. The delay waits on ctx, so cancellation
// stops the schedule between repeats.
//
// Returns:
//   - ErrUnknownDevice (wrapped): session is in config error
//   - ErrUnsupportedCommand / ErrUnsupportedMessageType: command does not
//     map onto this device class
//   - ErrSendFailed (wrapped): transmission failed under FailureAbort, or
//     every transmission failed under FailureContinue
func (s *Session) Send(ctx context.Context, channel string, cmd Command) error {
	if s.configErr != nil {
		return s.configErr
	}

	msg, err := ForEncoding(s.cfg.Class)
	if err != nil {
		return err
	}
	if err := msg.Encode(s.addr, channel, cmd); err != nil {
		return err
	}
	line, err := msg.Serialize()
	if err != nil {
		return err
	}

	repeats := clampRepeats(s.cfg.Repeats)
	delay := s.cfg.RepeatDelay
	if delay <= 0 {
		delay = defaultRepeatDelay
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	sent := 0
	for i := 0; i < repeats; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				if sent > 0 {
					return nil // command went out at least once
				}
				return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := s.writer.WriteLine(ctx, line); err != nil {
			if s.cfg.OnSendFailure == FailureAbort {
				return fmt.Errorf("%w: transmission %d/%d: %w", ErrSendFailed, i+1, repeats, err)
			}
			s.logWarn("transmission failed, continuing repeat schedule",
				"device_id", s.cfg.DeviceID, "attempt", i+1, "repeats", repeats, "error", err)
			continue
		}
		sent++
	}

	if sent == 0 {
		return fmt.Errorf("%w: all %d transmissions failed", ErrSendFailed, repeats)
	}

	s.logDebug("command transmitted",
		"device_id", s.cfg.DeviceID, "action", cmd.Action, "sent", sent, "repeats", repeats)
	return nil
}

// clampRepeats bounds a configured repeat count to [1, 20]. Zero and
// negative values mean the default of one transmission.
func clampRepeats(n int) int {
	if n < minRepeats {
		return minRepeats
	}
	if n > maxRepeats {
		return maxRepeats
	}
	return n
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
