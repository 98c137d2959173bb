package rflink

import (
	"errors"
	"testing"
)

// =============================================================================
// ParseFrame Tests
// =============================================================================

func TestParseFrame(t *testing.T) {
	raw := "20;2D;NewKaku;ID=00004d;SWITCH=1;CMD=ON;"

	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}

	if f.Node != NodeFromGateway {
		t.Errorf("Node = %q, want %q", f.Node, NodeFromGateway)
	}
	if f.Sequence != "2D" {
		t.Errorf("Sequence = %q, want 2D", f.Sequence)
	}
	if f.Protocol != "NewKaku" {
		t.Errorf("Protocol = %q, want NewKaku", f.Protocol)
	}
	if len(f.Fields) != 3 {
		t.Fatalf("len(Fields) = %d, want 3", len(f.Fields))
	}
	if f.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}

	// Fields preserve wire order
	wantKeys := []string{"ID", "SWITCH", "CMD"}
	for i, k := range f.Keys() {
		if k != wantKeys[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, k, wantKeys[i])
		}
	}
}

func TestParseFrameNoTrailingDelimiter(t *testing.T) {
	f, err := ParseFrame("20;05;Oregon TempHygro;ID=2D60;TEMP=00be")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if v, ok := f.Get("TEMP"); !ok || v != "00be" {
		t.Errorf("Get(TEMP) = %q, %v, want 00be, true", v, ok)
	}
}

func TestParseFrameWhitespace(t *testing.T) {
	f, err := ParseFrame("  20;2D;NewKaku;ID=00004d;CMD=ON;\r\n")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if f.Protocol != "NewKaku" {
		t.Errorf("Protocol = %q, want NewKaku", f.Protocol)
	}
}

func TestParseFrameMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty line", ""},
		{"whitespace only", "   "},
		{"too few fields", "20;2D"},
		{"unknown node directive", "99;2D;NewKaku;CMD=ON;"},
		{"empty protocol", "20;2D;;CMD=ON;"},
		{"token without separator", "20;2D;NewKaku;GARBAGE;"},
		{"empty key", "20;2D;NewKaku;=ON;"},
		{"duplicate key", "20;2D;NewKaku;CMD=ON;CMD=OFF;"},
		{"command line too short", "10;NewKaku;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.raw)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("ParseFrame(%q) error = %v, want ErrMalformedFrame", tt.raw, err)
			}
		})
	}
}

func TestParseFrameCommandLine(t *testing.T) {
	f, err := ParseFrame("10;NewKaku;00004d;1;ON;")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}

	if f.Node != NodeToGateway {
		t.Errorf("Node = %q, want %q", f.Node, NodeToGateway)
	}
	if v, _ := f.Get(KeyID); v != "00004d" {
		t.Errorf("Get(ID) = %q, want 00004d", v)
	}
	if v, _ := f.Get(KeySwitch); v != "1" {
		t.Errorf("Get(SWITCH) = %q, want 1", v)
	}
	if v, _ := f.Get(KeyCmd); v != "ON" {
		t.Errorf("Get(CMD) = %q, want ON", v)
	}
}

func TestParseFrameCommandLineDimLevel(t *testing.T) {
	// A numeric command position is a dim level
	f, err := ParseFrame("10;NewKaku;00004d;1;14;")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if v, ok := f.Get(KeySetLevel); !ok || v != "14" {
		t.Errorf("Get(SET_LEVEL) = %q, %v, want 14, true", v, ok)
	}
	if f.Has(KeyCmd) {
		t.Error("numeric command should map to SET_LEVEL, not CMD")
	}
}

func TestParseFrameCommandLineNoSwitch(t *testing.T) {
	f, err := ParseFrame("10;RTS;1a602f;DOWN;")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if f.Has(KeySwitch) {
		t.Error("three-field command line should not have SWITCH")
	}
	if v, _ := f.Get(KeyCmd); v != "DOWN" {
		t.Errorf("Get(CMD) = %q, want DOWN", v)
	}
}

// =============================================================================
// Accessor Tests
// =============================================================================

func TestFrameGet(t *testing.T) {
	f, err := ParseFrame("20;2D;NewKaku;ID=00004d;CMD=ON;")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}

	if v, ok := f.Get("ID"); !ok || v != "00004d" {
		t.Errorf("Get(ID) = %q, %v, want 00004d, true", v, ok)
	}
	if _, ok := f.Get("MISSING"); ok {
		t.Error("Get(MISSING) should report absent")
	}
	if !f.Has("CMD") {
		t.Error("Has(CMD) = false, want true")
	}
	if f.Has("TEMP") {
		t.Error("Has(TEMP) = true, want false")
	}
}

// =============================================================================
// Control Frame Tests
// =============================================================================

func TestFrameIsControl(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{
			name: "startup banner",
			raw:  "20;00;Nodo RadioFrequencyLink - RFLink Gateway V1.1 - R48;",
			want: true,
		},
		{
			name: "pong",
			raw:  "20;23;PONG;",
			want: true,
		},
		{
			name: "ok confirmation",
			raw:  "20;24;OK;",
			want: true,
		},
		{
			name: "unknown command reply",
			raw:  "20;25;CMD UNKNOWN;",
			want: true,
		},
		{
			name: "device frame",
			raw:  "20;2D;NewKaku;ID=00004d;CMD=ON;",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame(tt.raw)
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}
			if got := f.IsControl(); got != tt.want {
				t.Errorf("IsControl() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameString(t *testing.T) {
	f, err := ParseFrame("20;2D;NewKaku;ID=00004d;CMD=ON;")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	want := "Frame{NewKaku ID=00004d CMD=ON}"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
