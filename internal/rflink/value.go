package rflink

import (
	"fmt"
	"strconv"
	"strings"
)

// Numeric codec constants.
const (
	// signBit marks negative values in RFLink's signed hexadecimal fields.
	signBit = 0x8000

	// tenths scales fields transmitted in tenths of a unit (TEMP, RAIN, KWATT).
	tenths = 10.0

	// hexBase is the radix of RFLink hexadecimal fields.
	hexBase = 16

	// hexFieldBits bounds RFLink hex fields to 16 bits.
	hexFieldBits = 16
)

// ValueKind identifies a typed value family for synonym lookups.
type ValueKind int

// Value kinds understood by the conversion utilities.
const (
	KindOnOff ValueKind = iota
	KindOpenClosed
	KindUpDownStop
)

// OnOff is a binary switch state.
type OnOff string

// OnOff values as they appear on the wire.
const (
	On  OnOff = "ON"
	Off OnOff = "OFF"
)

// OpenClosed is a contact state derived from switch commands.
type OpenClosed string

// OpenClosed values.
const (
	Open   OpenClosed = "OPEN"
	Closed OpenClosed = "CLOSED"
)

// UpDownStop is a cover motion command.
type UpDownStop string

// UpDownStop values as they appear on the wire.
const (
	MotionUp   UpDownStop = "UP"
	MotionDown UpDownStop = "DOWN"
	MotionStop UpDownStop = "STOP"
)

// ParseOnOff converts a raw CMD value to an OnOff state.
//
// RFLink uses ON/OFF for addressed commands and ALLON/ALLOFF for group
// broadcasts; both map to the same typed state.
func ParseOnOff(raw string) (OnOff, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ON", "ALLON":
		return On, nil
	case "OFF", "ALLOFF":
		return Off, nil
	default:
		return "", fmt.Errorf("%w: %q is not an on/off value", ErrConversion, raw)
	}
}

// ParseUpDownStop converts a raw CMD value to a cover motion command.
func ParseUpDownStop(raw string) (UpDownStop, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "UP":
		return MotionUp, nil
	case "DOWN":
		return MotionDown, nil
	case "STOP":
		return MotionStop, nil
	default:
		return "", fmt.Errorf("%w: %q is not an up/down/stop value", ErrConversion, raw)
	}
}

// Synonym maps a typed value onto an equivalent value of a different kind.
//
// RFLink reports contact sensors with ON/OFF commands, so an on/off value
// implies an open/closed state and vice versa. The second return value is
// false when no meaningful synonym exists; callers must treat that as a
// valid outcome, distinct from a conversion failure.
func Synonym(value any, target ValueKind) (any, bool) {
	switch v := value.(type) {
	case OnOff:
		if target == KindOpenClosed {
			if v == On {
				return Open, true
			}
			return Closed, true
		}
	case OpenClosed:
		if target == KindOnOff {
			if v == Open {
				return On, true
			}
			return Off, true
		}
	}
	return nil, false
}

// ParseSignedHexTenths decodes RFLink's signed hexadecimal format used for
// temperature and similar readings: a 16-bit hex value in tenths of a unit,
// with the high bit marking a negative value.
//
//	"00be" → 19.0
//	"80be" → -19.0
func ParseSignedHexTenths(raw string) (float64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), hexBase, hexFieldBits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a hex value: %w", ErrConversion, raw, err)
	}
	value := float64(v&^uint64(signBit)) / tenths
	if v&signBit != 0 {
		value = -value
	}
	return value, nil
}

// ParseHexTenths decodes an unsigned hexadecimal field in tenths of a unit
// (rain gauges, cumulative energy).
func ParseHexTenths(raw string) (float64, error) {
	v, err := ParseHex(raw)
	if err != nil {
		return 0, err
	}
	return float64(v) / tenths, nil
}

// ParseHex decodes a plain unsigned hexadecimal field (lux, watts).
func ParseHex(raw string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), hexBase, hexFieldBits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a hex value: %w", ErrConversion, raw, err)
	}
	return v, nil
}

// ParseDecimal decodes a plain decimal field (humidity, dim levels).
func ParseDecimal(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal value: %w", ErrConversion, raw, err)
	}
	return v, nil
}

// ParseBattery decodes a BAT field into a low-battery flag.
func ParseBattery(raw string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OK":
		return false, nil
	case "LOW":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %q is not a battery state", ErrConversion, raw)
	}
}
