package rflink

import (
	"fmt"
	"strings"
)

// Device classes served by the bridge. These match the device "type" values
// used in bridge configuration and the Core device registry.
const (
	ClassSwitch = "switch"
	ClassDimmer = "dimmer"
	ClassCover  = "cover"
	ClassSensor = "sensor"
	ClassEnergy = "energy"
)

// Channel names used in Outputs projections and command routing.
const (
	ChannelCommand     = "command"
	ChannelContact     = "contact"
	ChannelDimLevel    = "dim_level"
	ChannelMotion      = "motion"
	ChannelTemperature = "temperature"
	ChannelHumidity    = "humidity"
	ChannelLux         = "lux"
	ChannelRain        = "rain"
	ChannelBatteryLow  = "battery_low"
	ChannelPower       = "power"
	ChannelEnergy      = "energy"
)

// Command actions accepted by the outbound-capable variants.
const (
	ActionOn   = "on"
	ActionOff  = "off"
	ActionDim  = "dim"
	ActionUp   = "up"
	ActionDown = "down"
	ActionStop = "stop"
)

// KeyID is the base unit identifier field carried by every device frame.
const KeyID = "ID"

// idDelimiter joins the identity-contributing parts of a device ID.
const idDelimiter = "-"

// Command is a typed domain command targeting one device channel.
type Command struct {
	// Action is the command verb: on, off, dim, up, down, stop.
	Action string

	// Level is the dim level for ActionDim (0-15 on the RFLink scale).
	Level int
}

// DeviceAddress is the decomposed form of a configured device ID.
//
// Device IDs concatenate the RF protocol name, the base unit ID and any
// sub-address with "-", e.g. "newkaku-00004d-1". The same composition rule
// is applied to decoded frames, so an inbound frame and its configured
// device normalise to the same string.
type DeviceAddress struct {
	// Protocol is the RF protocol name as sent on the wire (e.g. "NewKaku").
	Protocol string

	// ID is the base unit identifier.
	ID string

	// Extras holds identity-contributing sub-fields (e.g. the SWITCH
	// sub-address) in wire order.
	Extras []string
}

// ParseDeviceAddress splits a configured device ID into its parts.
func ParseDeviceAddress(deviceID string) (DeviceAddress, error) {
	parts := strings.Split(strings.TrimSpace(deviceID), idDelimiter)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return DeviceAddress{}, fmt.Errorf("%w: device ID %q must be protocol-id[-subaddress]", ErrUnknownDevice, deviceID)
	}
	return DeviceAddress{Protocol: parts[0], ID: parts[1], Extras: parts[2:]}, nil
}

// Message is one protocol message exchanged with the transceiver.
//
// A Message is single-use: the factory constructs it fresh, exactly one of
// Decode (inbound) or Encode (outbound) populates it, and the caller
// consumes it via Outputs or Serialize before discarding it. Calling both
// Decode and Encode on the same instance is a design error and returns
// ErrMessageConsumed.
type Message interface {
	// DeviceClass returns the logical device class this variant serves.
	DeviceClass() string

	// Keys returns the field keys this variant declares. Only declared
	// keys are read during Decode and emitted during Serialize.
	Keys() []string

	// DeviceID returns the normalised device identity composed from the
	// identity-contributing fields. Deterministic and stable across
	// decode and encode paths.
	DeviceID() string

	// Decode populates typed state from a received frame. Unconvertible
	// declared fields are recorded as warnings and left unset; remaining
	// fields still decode.
	Decode(f Frame) error

	// Warnings returns non-fatal conversion failures recorded by Decode.
	Warnings() []error

	// Encode populates typed state from a domain command targeting the
	// given device address and channel. Returns ErrUnsupportedCommand if
	// the command has no mapping for this variant.
	Encode(addr DeviceAddress, channel string, cmd Command) error

	// Outputs projects the typed state onto named channels. Channels with
	// no decoded value are omitted, never defaulted. Pure and
	// deterministic given the current state.
	Outputs() map[string]any

	// Serialize renders the message as an outbound protocol line
	// reproducing the semantic payload fields.
	Serialize() (string, error)
}

// messageState tracks the single-use lifecycle of a Message.
type messageState int

const (
	stateFresh messageState = iota
	stateDecoded
	stateEncoded
)

// baseMessage carries the identity and lifecycle bookkeeping shared by all
// variants. Variants embed it and call beginDecode/beginEncode before
// populating their typed state.
type baseMessage struct {
	protocol string
	unitID   string
	extras   []string

	state    messageState
	warnings []error
}

// beginDecode transitions Fresh → Decoded and captures base identity from
// the frame's protocol name and ID field.
func (b *baseMessage) beginDecode(f Frame) error {
	if b.state != stateFresh {
		return ErrMessageConsumed
	}
	b.state = stateDecoded
	b.protocol = f.Protocol
	if id, ok := f.Get(KeyID); ok {
		b.unitID = id
	}
	return nil
}

// beginEncode transitions Fresh → Encoded and captures base identity from
// the configured device address.
func (b *baseMessage) beginEncode(addr DeviceAddress) error {
	if b.state != stateFresh {
		return ErrMessageConsumed
	}
	b.state = stateEncoded
	b.protocol = addr.Protocol
	b.unitID = addr.ID
	b.extras = append([]string(nil), addr.Extras...)
	return nil
}

// appendIdentity adds an identity-contributing sub-field (in frame order).
func (b *baseMessage) appendIdentity(raw string) {
	b.extras = append(b.extras, raw)
}

// warn records a non-fatal conversion failure for one declared field.
func (b *baseMessage) warn(key string, err error) {
	b.warnings = append(b.warnings, fmt.Errorf("field %s: %w", key, err))
}

// Warnings returns non-fatal conversion failures recorded during Decode.
func (b *baseMessage) Warnings() []error {
	return b.warnings
}

// DeviceID composes the normalised device identity: lower-cased protocol
// name, base ID and sub-fields joined with "-", in wire order.
func (b *baseMessage) DeviceID() string {
	parts := make([]string, 0, 2+len(b.extras))
	parts = append(parts, b.protocol, b.unitID)
	parts = append(parts, b.extras...)
	return strings.ToLower(strings.Join(parts, idDelimiter))
}

// serializeLine renders an outbound line: node directive 10, the protocol
// name, the base ID, the identity sub-fields, then the payload tokens.
//
//	10;NewKaku;00004d;1;ON;
func (b *baseMessage) serializeLine(payload ...string) (string, error) {
	if b.state == stateFresh {
		return "", fmt.Errorf("%w: nothing to serialize", ErrUnsupportedCommand)
	}
	if b.protocol == "" || b.unitID == "" {
		return "", fmt.Errorf("%w: missing device identity", ErrUnsupportedCommand)
	}
	tokens := make([]string, 0, 3+len(b.extras)+len(payload))
	tokens = append(tokens, NodeToGateway, b.protocol, b.unitID)
	tokens = append(tokens, b.extras...)
	tokens = append(tokens, payload...)
	return strings.Join(tokens, fieldDelimiter) + fieldDelimiter, nil
}
