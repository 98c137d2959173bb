package rflink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default settings for the serial link.
const (
	// defaultBaudRate matches the RFLink Gateway firmware default.
	defaultBaudRate = 57600

	// defaultReadTimeout bounds individual port reads so the receive loop
	// can observe shutdown between bursts of traffic.
	defaultReadTimeout = 500 * time.Millisecond

	// defaultReconnectInterval is the initial delay between reconnection
	// attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval caps the reconnection backoff.
	maxReconnectInterval = 2 * time.Minute

	// readChunkSize is the size of the raw read buffer.
	readChunkSize = 256

	// maxLineLength bounds the accumulation buffer. RFLink lines are
	// short; anything longer means framing is lost, so the buffer is
	// dropped and accumulation restarts at the next line boundary.
	maxLineLength = 1024
)

// SerialConfig holds serial port configuration for the transceiver link.
type SerialConfig struct {
	// Device is the serial port path (e.g. "/dev/ttyUSB0").
	Device string

	// BaudRate is the line speed. Default: 57600.
	BaudRate int

	// ReconnectInterval is the initial delay between reconnection
	// attempts. Default: 5 seconds.
	ReconnectInterval time.Duration
}

// SerialStats holds operational statistics for the transceiver link.
type SerialStats struct {
	LinesTx         uint64
	LinesRx         uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool

	// Firmware is the gateway identification from the startup banner,
	// empty until the banner has been seen.
	Firmware string
}

// Logger is the minimal structured logging interface used throughout the
// package. Satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Transport is the byte-line boundary to the RFLink transceiver.
// It allows substituting a fake link in tests.
type Transport interface {
	// WriteLine sends one protocol line. The terminator is appended.
	WriteLine(ctx context.Context, line string) error

	// SetOnLine registers the callback invoked for each received line.
	// The callback runs on the reader goroutine: invocations are
	// sequential and preserve wire order.
	SetOnLine(callback func(line string))

	// IsConnected reports whether the port is currently open.
	IsConnected() bool

	// Stats returns a snapshot of link statistics.
	Stats() SerialStats

	// Close shuts the link down and stops reconnection attempts.
	Close() error
}

// Ensure Transceiver implements Transport.
var _ Transport = (*Transceiver)(nil)

// Transceiver is the serial connection to an RFLink gateway.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The line callback is invoked sequentially on a dedicated goroutine.
//
// Auto-Reconnection:
//   - When the port read fails the transceiver reopens it automatically,
//     with exponential backoff from ReconnectInterval up to two minutes.
//   - Reconnection stops only when Close is called.
type Transceiver struct {
	cfg  SerialConfig
	port serial.Port

	// Connection state
	connMu    sync.RWMutex
	connected bool

	// Reconnection state
	reconnecting atomic.Bool

	// Line handler callback
	onLine     func(string)
	callbackMu sync.RWMutex

	// Firmware banner, captured from the first greeting line.
	firmware   string
	firmwareMu sync.RWMutex

	// Write serialisation: one command line at a time on the wire.
	writeMu sync.Mutex

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	linesTx         atomic.Uint64
	linesRx         atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
}

// OpenTransceiver opens the serial port and starts the receive loop.
//
// Parameters:
//   - ctx: Context for cancellation of the initial open
//   - cfg: Serial port configuration
//
// Returns:
//   - *Transceiver: Connected transceiver ready for use
//   - error: ErrConnectionFailed if the port cannot be opened
func OpenTransceiver(ctx context.Context, cfg SerialConfig) (*Transceiver, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("%w: serial device is required", ErrConnectionFailed)
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	port, err := openPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t := &Transceiver{
		cfg:  cfg,
		port: port,
		done: newCloseOnce(),
	}
	t.lastActivity.Store(time.Now().Unix())

	t.connMu.Lock()
	t.connected = true
	t.connMu.Unlock()

	t.wg.Add(1)
	go t.receiveLoop()

	return t, nil
}

// openPort opens the configured serial port.
func openPort(cfg SerialConfig) (serial.Port, error) {
	return serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  defaultReadTimeout,
	})
}

// WriteLine sends one protocol line to the transceiver, appending the CRLF
// terminator the gateway expects. Lines are serialised: concurrent callers
// take turns on the wire.
func (t *Transceiver) WriteLine(ctx context.Context, line string) error {
	// Snapshot the port under connMu: reconnect swaps it from the reader
	// goroutine while command sends may be in flight.
	t.connMu.RLock()
	connected := t.connected
	port := t.port
	t.connMu.RUnlock()

	if !connected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := port.Write([]byte(line + "\r\n")); err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	t.linesTx.Add(1)
	t.lastActivity.Store(time.Now().Unix())
	return nil
}

// Ping sends the gateway keepalive command. The PONG reply arrives as a
// control frame on the line callback.
func (t *Transceiver) Ping(ctx context.Context) error {
	return t.WriteLine(ctx, NodeToGateway+fieldDelimiter+"PING"+fieldDelimiter)
}

// SetOnLine registers the callback invoked for each received line.
func (t *Transceiver) SetOnLine(callback func(string)) {
	t.callbackMu.Lock()
	t.onLine = callback
	t.callbackMu.Unlock()
}

// IsConnected reports whether the serial port is currently open.
func (t *Transceiver) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.connected
}

// Stats returns a snapshot of link statistics.
func (t *Transceiver) Stats() SerialStats {
	t.firmwareMu.RLock()
	firmware := t.firmware
	t.firmwareMu.RUnlock()

	return SerialStats{
		LinesTx:         t.linesTx.Load(),
		LinesRx:         t.linesRx.Load(),
		ErrorsTotal:     t.errorsTotal.Load(),
		ReconnectsTotal: t.reconnectsTotal.Load(),
		LastActivity:    time.Unix(t.lastActivity.Load(), 0),
		Connected:       t.IsConnected(),
		Reconnecting:    t.reconnecting.Load(),
		Firmware:        firmware,
	}
}

// SetLogger sets an optional logger for link events.
func (t *Transceiver) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// Close shuts down the link and stops reconnection attempts.
func (t *Transceiver) Close() error {
	t.done.Close()

	t.connMu.Lock()
	connected := t.connected
	port := t.port
	t.connected = false
	t.connMu.Unlock()

	var err error
	if connected && port != nil {
		err = port.Close()
	}

	t.wg.Wait()
	return err
}

// receiveLoop reads the port, reassembles lines and dispatches them to the
// registered callback. A single goroutine owns reading, so callbacks see
// lines in wire order. On a port failure the loop switches to reconnection.
func (t *Transceiver) receiveLoop() {
	defer t.wg.Done()

	buf := make([]byte, readChunkSize)
	var pending []byte

	for {
		select {
		case <-t.done.Done():
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			pending = t.consume(append(pending, buf[:n]...))
		}
		if err != nil {
			if isReadTimeout(err) {
				continue // idle link, keep polling
			}
			select {
			case <-t.done.Done():
				return // Close() interrupted the read
			default:
			}
			t.errorsTotal.Add(1)
			t.logWarn("serial read failed, reconnecting", "error", err)
			if !t.reconnect() {
				return
			}
			pending = pending[:0]
		}
	}
}

// isReadTimeout reports whether a port read error is an idle timeout rather
// than a link failure.
func isReadTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout) || strings.Contains(err.Error(), "timeout")
}

// consume splits accumulated bytes on line terminators, dispatching each
// complete line. Returns the remaining partial line.
func (t *Transceiver) consume(pending []byte) []byte {
	for {
		idx := bytes.IndexByte(pending, '\n')
		if idx < 0 {
			if len(pending) > maxLineLength {
				t.errorsTotal.Add(1)
				t.logWarn("dropping oversized partial line", "bytes", len(pending))
				return pending[:0]
			}
			return pending
		}

		line := strings.TrimRight(string(pending[:idx]), "\r")
		pending = pending[idx+1:]

		if line == "" {
			continue
		}

		t.linesRx.Add(1)
		t.lastActivity.Store(time.Now().Unix())
		t.captureBanner(line)

		t.callbackMu.RLock()
		callback := t.onLine
		t.callbackMu.RUnlock()
		if callback != nil {
			callback(line)
		}
	}
}

// captureBanner records the gateway identification from the startup banner.
func (t *Transceiver) captureBanner(line string) {
	if !strings.Contains(line, "Nodo RadioFrequencyLink") {
		return
	}
	// 20;00;Nodo RadioFrequencyLink - RFLink Gateway V1.1 - R48;
	banner := strings.TrimSuffix(line, fieldDelimiter)
	if idx := strings.LastIndex(banner, fieldDelimiter); idx >= 0 {
		banner = banner[idx+1:]
	}

	t.firmwareMu.Lock()
	t.firmware = banner
	t.firmwareMu.Unlock()

	t.logInfo("transceiver identified", "firmware", banner)
}

// reconnect reopens the serial port with exponential backoff. Returns false
// when Close was called while waiting.
func (t *Transceiver) reconnect() bool {
	t.connMu.Lock()
	t.connected = false
	dead := t.port
	t.connMu.Unlock()

	if dead != nil {
		dead.Close()
	}

	t.reconnecting.Store(true)
	defer t.reconnecting.Store(false)

	interval := t.cfg.ReconnectInterval
	for {
		select {
		case <-t.done.Done():
			return false
		case <-time.After(interval):
		}

		port, err := openPort(t.cfg)
		if err != nil {
			t.logWarn("serial reconnect failed", "device", t.cfg.Device, "error", err, "retry_in", interval)
			interval *= 2
			if interval > maxReconnectInterval {
				interval = maxReconnectInterval
			}
			continue
		}

		t.connMu.Lock()
		t.port = port
		t.connected = true
		t.connMu.Unlock()
		t.reconnectsTotal.Add(1)
		t.logInfo("serial reconnected", "device", t.cfg.Device)
		return true
	}
}

func (t *Transceiver) logInfo(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (t *Transceiver) logWarn(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
