package rflink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test Fakes
// =============================================================================

// fakeWriter records every line written and can fail individual calls.
type fakeWriter struct {
	mu    sync.Mutex
	lines []string
	errs  []error // errs[i] is returned for call i, nil past the end
	calls int

	// onWrite, when set, runs before each call is recorded.
	onWrite func(call int)
}

func (w *fakeWriter) WriteLine(_ context.Context, line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	call := w.calls
	w.calls++
	if w.onWrite != nil {
		w.onWrite(call)
	}
	if call < len(w.errs) && w.errs[call] != nil {
		return w.errs[call]
	}
	w.lines = append(w.lines, line)
	return nil
}

func (w *fakeWriter) written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}

// fakeStatePublisher records state publishes and can fail on demand.
type fakeStatePublisher struct {
	mu        sync.Mutex
	published []publishedState
	err       error
}

type publishedState struct {
	deviceID string
	class    string
	outputs  map[string]any
}

func (p *fakeStatePublisher) PublishState(_ context.Context, deviceID, deviceClass string, outputs map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedState{deviceID, deviceClass, outputs})
	return nil
}

func (p *fakeStatePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		DeviceID: "newkaku-00004d-1",
		Class:    ClassSwitch,
		Repeats:  1,
	}
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewSession(t *testing.T) {
	s := NewSession(testSessionConfig(), &fakeWriter{}, &fakeStatePublisher{})

	if s.DeviceID() != "newkaku-00004d-1" {
		t.Errorf("DeviceID() = %q", s.DeviceID())
	}
	if s.Class() != ClassSwitch {
		t.Errorf("Class() = %q", s.Class())
	}
	if s.Status() != StatusOfflineBridge {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusOfflineBridge)
	}
	if !s.LastSeen().IsZero() {
		t.Error("LastSeen() should be zero before any inbound match")
	}
}

func TestNewSessionConfigError(t *testing.T) {
	tests := []struct {
		name string
		cfg  SessionConfig
	}{
		{
			name: "unparseable device ID",
			cfg:  SessionConfig{DeviceID: "lonely", Class: ClassSwitch},
		},
		{
			name: "unknown class",
			cfg:  SessionConfig{DeviceID: "newkaku-00004d-1", Class: "toaster"},
		},
		{
			name: "bad failure policy",
			cfg:  SessionConfig{DeviceID: "newkaku-00004d-1", Class: ClassSwitch, OnSendFailure: "retry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			s := NewSession(tt.cfg, w, &fakeStatePublisher{})

			if s.Status() != StatusOfflineConfigError {
				t.Fatalf("Status() = %q, want %q", s.Status(), StatusOfflineConfigError)
			}

			err := s.Send(context.Background(), "", Command{Action: ActionOn})
			if !errors.Is(err, ErrUnknownDevice) {
				t.Errorf("Send() error = %v, want ErrUnknownDevice", err)
			}
			if w.calls != 0 {
				t.Error("config-error session must never transmit")
			}
		})
	}
}

func TestSessionConfigErrorSticky(t *testing.T) {
	s := NewSession(SessionConfig{DeviceID: "lonely", Class: ClassSwitch}, &fakeWriter{}, nil)

	s.SetLinkUp(true)
	if s.Status() != StatusOfflineConfigError {
		t.Errorf("Status() after SetLinkUp(true) = %q, want config error to stick", s.Status())
	}
	s.SetLinkUp(false)
	if s.Status() != StatusOfflineConfigError {
		t.Errorf("Status() after SetLinkUp(false) = %q, want config error to stick", s.Status())
	}
}

func TestSessionLinkState(t *testing.T) {
	s := NewSession(testSessionConfig(), &fakeWriter{}, nil)

	s.SetLinkUp(true)
	if s.Status() != StatusOnline {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusOnline)
	}
	s.SetLinkUp(false)
	if s.Status() != StatusOfflineBridge {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusOfflineBridge)
	}
}

// =============================================================================
// Repeat Clamp Tests
// =============================================================================

func TestClampRepeats(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{3, 3},
		{20, 20},
		{21, 20},
		{100, 20},
	}

	for _, tt := range tests {
		if got := clampRepeats(tt.in); got != tt.want {
			t.Errorf("clampRepeats(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Send Tests
// =============================================================================

func TestSessionSend(t *testing.T) {
	w := &fakeWriter{}
	s := NewSession(testSessionConfig(), w, nil)

	if err := s.Send(context.Background(), "", Command{Action: ActionOn}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	lines := w.written()
	if len(lines) != 1 {
		t.Fatalf("wrote %d lines, want 1", len(lines))
	}
	if lines[0] != "10;newkaku;00004d;1;ON;" {
		t.Errorf("wrote %q, want 10;newkaku;00004d;1;ON;", lines[0])
	}
}

func TestSessionSendRepeats(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Repeats = 3
	cfg.RepeatDelay = time.Millisecond
	w := &fakeWriter{}
	s := NewSession(cfg, w, nil)

	if err := s.Send(context.Background(), "", Command{Action: ActionOff}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	lines := w.written()
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3", len(lines))
	}
	for i, line := range lines {
		if line != "10;newkaku;00004d;1;OFF;" {
			t.Errorf("line %d = %q", i, line)
		}
	}
}

func TestSessionSendAbortPolicy(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Repeats = 3
	cfg.RepeatDelay = time.Millisecond
	cfg.OnSendFailure = FailureAbort
	w := &fakeWriter{errs: []error{nil, errors.New("port gone")}}
	s := NewSession(cfg, w, nil)

	err := s.Send(context.Background(), "", Command{Action: ActionOn})
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send() error = %v, want ErrSendFailed", err)
	}
	if w.calls != 2 {
		t.Errorf("made %d write calls, want 2 (abort on first failure)", w.calls)
	}
}

func TestSessionSendContinuePolicy(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Repeats = 3
	cfg.RepeatDelay = time.Millisecond
	cfg.OnSendFailure = FailureContinue
	w := &fakeWriter{errs: []error{errors.New("glitch"), nil, nil}}
	s := NewSession(cfg, w, nil)

	if err := s.Send(context.Background(), "", Command{Action: ActionOn}); err != nil {
		t.Fatalf("Send() error = %v, want nil when later repeats land", err)
	}
	if got := len(w.written()); got != 2 {
		t.Errorf("wrote %d lines, want 2", got)
	}
}

func TestSessionSendAllFailed(t *testing.T) {
	boom := errors.New("port gone")
	cfg := testSessionConfig()
	cfg.Repeats = 2
	cfg.RepeatDelay = time.Millisecond
	w := &fakeWriter{errs: []error{boom, boom}}
	s := NewSession(cfg, w, nil)

	err := s.Send(context.Background(), "", Command{Action: ActionOn})
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send() error = %v, want ErrSendFailed", err)
	}
}

func TestSessionSendCancelAfterFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := testSessionConfig()
	cfg.Repeats = 5
	cfg.RepeatDelay = time.Hour // cancellation must beat the delay
	w := &fakeWriter{}
	w.onWrite = func(call int) {
		if call == 0 {
			cancel()
		}
	}
	s := NewSession(cfg, w, nil)

	if err := s.Send(ctx, "", Command{Action: ActionOn}); err != nil {
		t.Fatalf("Send() error = %v, want nil when at least one transmission went out", err)
	}
	if got := len(w.written()); got != 1 {
		t.Errorf("wrote %d lines, want 1", got)
	}
}

func TestSessionSendCancelNothingSent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testSessionConfig()
	cfg.Repeats = 3
	cfg.OnSendFailure = FailureContinue
	w := &fakeWriter{errs: []error{errors.New("glitch")}}
	s := NewSession(cfg, w, nil)

	err := s.Send(ctx, "", Command{Action: ActionOn})
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send() error = %v, want ErrSendFailed", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want wrapped context.Canceled", err)
	}
}

func TestSessionSendUnsupportedCommand(t *testing.T) {
	w := &fakeWriter{}
	s := NewSession(testSessionConfig(), w, nil)

	err := s.Send(context.Background(), "", Command{Action: ActionStop})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("Send() error = %v, want ErrUnsupportedCommand", err)
	}
	if w.calls != 0 {
		t.Error("rejected command must not transmit")
	}
}

// =============================================================================
// Inbound Tests
// =============================================================================

func TestSessionHandleInbound(t *testing.T) {
	pub := &fakeStatePublisher{}
	s := NewSession(testSessionConfig(), &fakeWriter{}, pub)

	f := mustParse(t, "20;2D;NewKaku;ID=00004d;SWITCH=1;CMD=ON;")
	msg := &SwitchMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !s.HandleInbound(context.Background(), msg) {
		t.Fatal("HandleInbound() = false, want true for matching device")
	}

	if s.Status() != StatusOnline {
		t.Errorf("Status() = %q, want %q after inbound match", s.Status(), StatusOnline)
	}
	if s.LastSeen().IsZero() {
		t.Error("LastSeen() not updated")
	}

	if pub.count() != 1 {
		t.Fatalf("published %d states, want 1", pub.count())
	}
	got := pub.published[0]
	if got.deviceID != "newkaku-00004d-1" || got.class != ClassSwitch {
		t.Errorf("published (%q, %q)", got.deviceID, got.class)
	}
	if got.outputs[ChannelCommand] != On {
		t.Errorf("outputs[command] = %v, want ON", got.outputs[ChannelCommand])
	}
}

func TestSessionHandleInboundMismatch(t *testing.T) {
	pub := &fakeStatePublisher{}
	s := NewSession(testSessionConfig(), &fakeWriter{}, pub)

	f := mustParse(t, "20;2E;NewKaku;ID=00004d;SWITCH=2;CMD=ON;")
	msg := &SwitchMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if s.HandleInbound(context.Background(), msg) {
		t.Fatal("HandleInbound() = true for a different sub-address")
	}
	if pub.count() != 0 {
		t.Error("mismatched message must not publish state")
	}
	if !s.LastSeen().IsZero() {
		t.Error("mismatched message must not update LastSeen")
	}
}

func TestSessionHandleInboundEmptyOutputs(t *testing.T) {
	pub := &fakeStatePublisher{}
	s := NewSession(testSessionConfig(), &fakeWriter{}, pub)

	// Corrupt command: identity decodes, outputs stay empty.
	f := mustParse(t, "20;2F;NewKaku;ID=00004d;SWITCH=1;CMD=WOBBLE;")
	msg := &SwitchMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !s.HandleInbound(context.Background(), msg) {
		t.Fatal("HandleInbound() = false, want true (identity matched)")
	}
	if pub.count() != 0 {
		t.Error("empty outputs must not publish state")
	}
	if s.Status() != StatusOnline {
		t.Errorf("Status() = %q, want online (device was heard)", s.Status())
	}
}

func TestSessionHandleInboundPublishError(t *testing.T) {
	pub := &fakeStatePublisher{err: errors.New("broker down")}
	s := NewSession(testSessionConfig(), &fakeWriter{}, pub)

	f := mustParse(t, "20;30;NewKaku;ID=00004d;SWITCH=1;CMD=OFF;")
	msg := &SwitchMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	// Publish failures are logged, never surfaced to the transport loop.
	if !s.HandleInbound(context.Background(), msg) {
		t.Fatal("HandleInbound() = false, want true despite publish failure")
	}
}
