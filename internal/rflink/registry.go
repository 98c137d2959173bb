package rflink

import (
	"fmt"
	"strings"
)

// variantDef describes one registered message variant.
//
// RFLink frames carry no explicit type token, so dispatch is capability
// based: each variant declares the field keys it understands and,
// optionally, the RF protocol families that always map to it. Adding a
// device class means one more register call — dispatch logic never changes.
type variantDef struct {
	// class is the logical device class ("switch", "sensor", ...).
	class string

	// keys are the field keys the variant declares, beyond the base ID.
	keys []string

	// protocols are lower-cased RF protocol names that select this
	// variant unconditionally (explicit discriminators, e.g. "rts").
	protocols []string

	// outbound marks variants that can encode commands.
	outbound bool

	// construct returns a fresh, unconsumed message instance.
	construct func() Message
}

// registry holds the static variant table. Populated once at init, read-only
// afterwards, safe for unsynchronised concurrent reads.
var registry []*variantDef

// byProtocol indexes explicit protocol discriminators, built at init.
var byProtocol = map[string]*variantDef{}

// byClass indexes outbound-capable variants by device class, built at init.
var byClass = map[string]*variantDef{}

func register(def variantDef) {
	v := &def
	registry = append(registry, v)
	for _, p := range v.protocols {
		byProtocol[strings.ToLower(p)] = v
	}
	if v.outbound {
		byClass[v.class] = v
	}
}

func init() {
	register(variantDef{
		class:     ClassSwitch,
		keys:      []string{KeySwitch, KeyCmd},
		outbound:  true,
		construct: func() Message { return &SwitchMessage{} },
	})
	register(variantDef{
		class:     ClassDimmer,
		keys:      []string{KeySwitch, KeyCmd, KeySetLevel},
		outbound:  true,
		construct: func() Message { return &DimmerMessage{} },
	})
	register(variantDef{
		class:     ClassCover,
		keys:      []string{KeySwitch, KeyCmd},
		protocols: []string{"RTS"},
		outbound:  true,
		construct: func() Message { return &CoverMessage{} },
	})
	register(variantDef{
		class:     ClassSensor,
		keys:      []string{KeyTemp, KeyHum, KeyLux, KeyRain, KeyBat},
		construct: func() Message { return &SensorMessage{} },
	})
	register(variantDef{
		class:     ClassEnergy,
		keys:      []string{KeyWatt, KeyKWatt},
		construct: func() Message { return &EnergyMessage{} },
	})
}

// ForDecoding selects the registered variant for a received frame and
// returns a fresh message instance ready for Decode.
//
// Selection order:
//  1. Explicit protocol discriminator (e.g. every RTS frame is a cover).
//  2. Declared-key specificity: the variant matching the most frame keys
//     wins; ties go to the variant with the smallest declared key set, so a
//     plain SWITCH/CMD frame selects the switch rather than the dimmer.
//
// Returns ErrUnsupportedMessageType when no variant matches any frame key.
// This is a routine, per-frame condition on a shared radio band, not a
// process-level failure.
func ForDecoding(f Frame) (Message, error) {
	if v, ok := byProtocol[strings.ToLower(f.Protocol)]; ok {
		return v.construct(), nil
	}

	var best *variantDef
	bestMatched := 0
	for _, v := range registry {
		if len(v.protocols) > 0 {
			continue // explicit-discriminator variants never match by keys
		}
		matched := 0
		for _, k := range v.keys {
			if f.Has(k) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		switch {
		case matched > bestMatched:
			best, bestMatched = v, matched
		case matched == bestMatched && best != nil && len(v.keys) < len(best.keys):
			best = v
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no variant for protocol %q with keys %v",
			ErrUnsupportedMessageType, f.Protocol, f.Keys())
	}
	return best.construct(), nil
}

// ForEncoding returns a fresh message instance for the variant registered
// as outbound-capable for the given device class.
//
// Returns ErrUnsupportedMessageType for classes that are inbound-only
// (sensor, energy) or unknown.
func ForEncoding(deviceClass string) (Message, error) {
	v, ok := byClass[deviceClass]
	if !ok {
		return nil, fmt.Errorf("%w: device class %q has no outbound variant",
			ErrUnsupportedMessageType, deviceClass)
	}
	return v.construct(), nil
}

// RegisteredClasses returns the device classes known to the registry.
// Used by configuration validation.
func RegisteredClasses() []string {
	classes := make([]string, 0, len(registry))
	for _, v := range registry {
		classes = append(classes, v.class)
	}
	return classes
}
