package rflink

import (
	"errors"
	"testing"
)

// =============================================================================
// ForDecoding Tests
// =============================================================================

func TestForDecoding(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantClass string
	}{
		{
			name:      "switch by key set",
			raw:       "20;2D;NewKaku;ID=00004d;SWITCH=1;CMD=ON;",
			wantClass: ClassSwitch,
		},
		{
			name:      "dimmer by SET_LEVEL",
			raw:       "20;06;NewKaku;ID=00004d;SWITCH=1;CMD=ON;SET_LEVEL=14;",
			wantClass: ClassDimmer,
		},
		{
			name:      "cover by RTS protocol discriminator",
			raw:       "20;07;RTS;ID=1a602f;SWITCH=01;CMD=DOWN;",
			wantClass: ClassCover,
		},
		{
			name:      "rts lowercase protocol",
			raw:       "20;07;rts;ID=1a602f;SWITCH=01;CMD=UP;",
			wantClass: ClassCover,
		},
		{
			name:      "sensor by weather keys",
			raw:       "20;32;Oregon TempHygro;ID=2D60;TEMP=00be;HUM=42;BAT=OK;",
			wantClass: ClassSensor,
		},
		{
			name:      "sensor with single key",
			raw:       "20;33;Alecto V1;ID=0042;RAIN=001c;",
			wantClass: ClassSensor,
		},
		{
			name:      "energy by power keys",
			raw:       "20;0D;OWL CM113;ID=ea00;WATT=1c9;KWATT=a;",
			wantClass: ClassEnergy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame(tt.raw)
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}

			msg, err := ForDecoding(f)
			if err != nil {
				t.Fatalf("ForDecoding() error = %v", err)
			}
			if msg.DeviceClass() != tt.wantClass {
				t.Errorf("DeviceClass() = %q, want %q", msg.DeviceClass(), tt.wantClass)
			}
		})
	}
}

func TestForDecodingNoMatch(t *testing.T) {
	// ID alone is not a declared key for any variant
	f, err := ParseFrame("20;44;SomeProtocol;ID=1234;UNKNOWN=1;")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}

	_, err = ForDecoding(f)
	if !errors.Is(err, ErrUnsupportedMessageType) {
		t.Errorf("ForDecoding() error = %v, want ErrUnsupportedMessageType", err)
	}
}

func TestForDecodingReturnsFreshInstance(t *testing.T) {
	f, err := ParseFrame("20;2D;NewKaku;ID=00004d;SWITCH=1;CMD=ON;")
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}

	first, err := ForDecoding(f)
	if err != nil {
		t.Fatalf("ForDecoding() error = %v", err)
	}
	if err := first.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	// A second selection must give an unconsumed instance
	second, err := ForDecoding(f)
	if err != nil {
		t.Fatalf("ForDecoding() error = %v", err)
	}
	if err := second.Decode(f); err != nil {
		t.Errorf("Decode() on fresh instance error = %v", err)
	}
}

// =============================================================================
// ForEncoding Tests
// =============================================================================

func TestForEncoding(t *testing.T) {
	for _, class := range []string{ClassSwitch, ClassDimmer, ClassCover} {
		msg, err := ForEncoding(class)
		if err != nil {
			t.Errorf("ForEncoding(%q) error = %v", class, err)
			continue
		}
		if msg.DeviceClass() != class {
			t.Errorf("ForEncoding(%q).DeviceClass() = %q", class, msg.DeviceClass())
		}
	}
}

func TestForEncodingInboundOnly(t *testing.T) {
	for _, class := range []string{ClassSensor, ClassEnergy, "toaster", ""} {
		_, err := ForEncoding(class)
		if !errors.Is(err, ErrUnsupportedMessageType) {
			t.Errorf("ForEncoding(%q) error = %v, want ErrUnsupportedMessageType", class, err)
		}
	}
}

// =============================================================================
// RegisteredClasses Tests
// =============================================================================

func TestRegisteredClasses(t *testing.T) {
	classes := RegisteredClasses()
	want := []string{ClassSwitch, ClassDimmer, ClassCover, ClassSensor, ClassEnergy}
	if len(classes) != len(want) {
		t.Fatalf("RegisteredClasses() = %v, want %v", classes, want)
	}
	seen := make(map[string]bool, len(classes))
	for _, c := range classes {
		seen[c] = true
	}
	for _, c := range want {
		if !seen[c] {
			t.Errorf("RegisteredClasses() missing %q", c)
		}
	}
}

func TestRegistryIndexesPointIntoTable(t *testing.T) {
	// The protocol and class indexes must reference the registered entries
	// themselves, so lookups and table scans agree on one definition.
	inTable := make(map[*variantDef]bool, len(registry))
	for _, v := range registry {
		inTable[v] = true
	}
	for proto, v := range byProtocol {
		if !inTable[v] {
			t.Errorf("byProtocol[%q] points outside the registry table", proto)
		}
	}
	for class, v := range byClass {
		if !inTable[v] {
			t.Errorf("byClass[%q] points outside the registry table", class)
		}
		if v.class != class {
			t.Errorf("byClass[%q] registered as class %q", class, v.class)
		}
		if !v.outbound {
			t.Errorf("byClass[%q] entry is not outbound-capable", class)
		}
	}
}
