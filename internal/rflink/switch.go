package rflink

import "fmt"

// Field keys declared by the switch family of variants.
const (
	// KeySwitch is the sub-address of a unit behind one base ID.
	KeySwitch = "SWITCH"

	// KeyCmd is the command/state token (ON, OFF, ALLON, ALLOFF, ...).
	KeyCmd = "CMD"
)

// SwitchMessage models a power switch or contact device.
//
// Inbound frames report ON/OFF commands; because many RFLink contact
// sensors transmit plain switch commands, the open/closed contact state is
// derived as a synonym of the command.
//
//	20;2D;NewKaku;ID=00004d;SWITCH=1;CMD=ON;
type SwitchMessage struct {
	baseMessage

	command    OnOff
	hasCommand bool
	contact    OpenClosed
	hasContact bool
}

// DeviceClass implements Message.
func (m *SwitchMessage) DeviceClass() string { return ClassSwitch }

// Keys implements Message.
func (m *SwitchMessage) Keys() []string { return []string{KeySwitch, KeyCmd} }

// Decode implements Message.
func (m *SwitchMessage) Decode(f Frame) error {
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
			if syn, ok := Synonym(cmd, KindOpenClosed); ok {
				m.contact = syn.(OpenClosed)
				m.hasContact = true
			}
		}
	}

	// The sub-address distinguishes units behind one base ID, so it is
	// part of the device identity.
	if raw, ok := f.Get(KeySwitch); ok {
		m.appendIdentity(raw)
	}

	return nil
}

// Encode implements Message.
func (m *SwitchMessage) Encode(addr DeviceAddress, channel string, cmd Command) error {
	if channel != "" && channel != ChannelCommand {
		return fmt.Errorf("%w: switch has no channel %q", ErrUnsupportedCommand, channel)
	}

	var state OnOff
	switch cmd.Action {
	case ActionOn:
		state = On
	case ActionOff:
		state = Off
	default:
		return fmt.Errorf("%w: switch cannot send %q", ErrUnsupportedCommand, cmd.Action)
	}

	if err := m.beginEncode(addr); err != nil {
		return err
	}
	m.command = state
	m.hasCommand = true
	return nil
}

// Outputs implements Message.
func (m *SwitchMessage) Outputs() map[string]any {
	out := make(map[string]any, 2)
	if m.hasCommand {
		out[ChannelCommand] = m.command
	}
	if m.hasContact {
		out[ChannelContact] = m.contact
	}
	return out
}

// Serialize implements Message.
func (m *SwitchMessage) Serialize() (string, error) {
	if !m.hasCommand {
		return "", fmt.Errorf("%w: switch message has no command", ErrUnsupportedCommand)
	}
	return m.serializeLine(string(m.command))
}

// String returns a compact representation for logging.
func (m *SwitchMessage) String() string {
	return fmt.Sprintf("SwitchMessage{device:%s command:%s}", m.DeviceID(), m.command)
}
