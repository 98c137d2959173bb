package rflink

import (
	"fmt"
	"strconv"
)

// KeySetLevel is the dim level field (decimal, 0-15 on the RFLink scale).
const KeySetLevel = "SET_LEVEL"

// Dim level bounds on the RFLink wire scale.
const (
	dimLevelMin = 0
	dimLevelMax = 15
)

// DimmerMessage models a dimmable light.
//
// Inbound frames carry either a plain ON/OFF command or a SET_LEVEL value:
//
//	20;06;NewKaku;ID=00004d;SWITCH=1;CMD=ON;SET_LEVEL=14;
//
// Outbound dim commands are sent as the bare level number in the command
// position, which is how the transceiver expects dimming:
//
//	10;NewKaku;00004d;1;14;
type DimmerMessage struct {
	baseMessage

	command    OnOff
	hasCommand bool
	level      int
	hasLevel   bool
}

// DeviceClass implements Message.
func (m *DimmerMessage) DeviceClass() string { return ClassDimmer }

// Keys implements Message.
func (m *DimmerMessage) Keys() []string { return []string{KeySwitch, KeyCmd, KeySetLevel} }

// Decode implements Message.
func (m *DimmerMessage) Decode(f Frame) error {
	if err := m.beginDecode(f); err != nil {
		return err
	}

	if raw, ok := f.Get(KeyCmd); ok {
		cmd, err := ParseOnOff(raw)
		if err != nil {
			m.warn(KeyCmd, err)
		} else {
			m.command = cmd
			m.hasCommand = true
		}
	}

	if raw, ok := f.Get(KeySetLevel); ok {
		level, err := ParseDecimal(raw)
		switch {
		case err != nil:
			m.warn(KeySetLevel, err)
		case level < dimLevelMin || level > dimLevelMax:
			m.warn(KeySetLevel, fmt.Errorf("%w: level %d out of range %d-%d",
				ErrConversion, level, dimLevelMin, dimLevelMax))
		default:
			m.level = level
			m.hasLevel = true
		}
	}

	if raw, ok := f.Get(KeySwitch); ok {
		m.appendIdentity(raw)
	}

	return nil
}

// Encode implements Message.
func (m *DimmerMessage) Encode(addr DeviceAddress, channel string, cmd Command) error {
	switch channel {
	case "", ChannelCommand, ChannelDimLevel:
	default:
		return fmt.Errorf("%w: dimmer has no channel %q", ErrUnsupportedCommand, channel)
	}

	var (
		state    OnOff
		hasState bool
		level    int
		hasLevel bool
	)
	switch cmd.Action {
	case ActionOn:
		state, hasState = On, true
	case ActionOff:
		state, hasState = Off, true
	case ActionDim:
		if cmd.Level < dimLevelMin || cmd.Level > dimLevelMax {
			return fmt.Errorf("%w: dim level %d out of range %d-%d",
				ErrUnsupportedCommand, cmd.Level, dimLevelMin, dimLevelMax)
		}
		level, hasLevel = cmd.Level, true
	default:
		return fmt.Errorf("%w: dimmer cannot send %q", ErrUnsupportedCommand, cmd.Action)
	}

	if err := m.beginEncode(addr); err != nil {
		return err
	}
	m.command, m.hasCommand = state, hasState
	m.level, m.hasLevel = level, hasLevel
	return nil
}

// Outputs implements Message.
func (m *DimmerMessage) Outputs() map[string]any {
	out := make(map[string]any, 2)
	if m.hasCommand {
		out[ChannelCommand] = m.command
	}
	if m.hasLevel {
		out[ChannelDimLevel] = m.level
	}
	return out
}

// Serialize implements Message.
func (m *DimmerMessage) Serialize() (string, error) {
	switch {
	case m.hasLevel:
		return m.serializeLine(strconv.Itoa(m.level))
	case m.hasCommand:
		return m.serializeLine(string(m.command))
	default:
		return "", fmt.Errorf("%w: dimmer message has no command or level", ErrUnsupportedCommand)
	}
}

// String returns a compact representation for logging.
func (m *DimmerMessage) String() string {
	if m.hasLevel {
		return fmt.Sprintf("DimmerMessage{device:%s level:%d}", m.DeviceID(), m.level)
	}
	return fmt.Sprintf("DimmerMessage{device:%s command:%s}", m.DeviceID(), m.command)
}
