package rflink

import "fmt"

// CoverMessage models a motorised blind or shutter (RTS/Somfy family).
//
// RTS frames are selected by their protocol name rather than by key set,
// since their SWITCH/CMD fields mirror the switch family:
//
//	20;07;RTS;ID=1a602f;SWITCH=01;CMD=DOWN;
type CoverMessage struct {
	baseMessage

	motion    UpDownStop
	hasMotion bool
}

// DeviceClass implements Message.
func (m *CoverMessage) DeviceClass() string { return ClassCover }

// Keys implements Message.
func (m *CoverMessage) Keys() []string { return []string{KeySwitch, KeyCmd} }

// Decode implements Message.
func (m *CoverMessage) Decode(f Frame) error {
	if err := m.beginDecode(f); err != nil {
		return err
	}

	if raw, ok := f.Get(KeyCmd); ok {
		motion, err := ParseUpDownStop(raw)
		if err != nil {
			m.warn(KeyCmd, err)
		} else {
			m.motion = motion
			m.hasMotion = true
		}
	}

	if raw, ok := f.Get(KeySwitch); ok {
		m.appendIdentity(raw)
	}

	return nil
}

// Encode implements Message.
func (m *CoverMessage) Encode(addr DeviceAddress, channel string, cmd Command) error {
	if channel != "" && channel != ChannelMotion {
		return fmt.Errorf("%w: cover has no channel %q", ErrUnsupportedCommand, channel)
	}

	var motion UpDownStop
	switch cmd.Action {
	case ActionUp:
		motion = MotionUp
	case ActionDown:
		motion = MotionDown
	case ActionStop:
		motion = MotionStop
	default:
		return fmt.Errorf("%w: cover cannot send %q", ErrUnsupportedCommand, cmd.Action)
	}

	if err := m.beginEncode(addr); err != nil {
		return err
	}
	m.motion = motion
	m.hasMotion = true
	return nil
}

// Outputs implements Message.
func (m *CoverMessage) Outputs() map[string]any {
	out := make(map[string]any, 1)
	if m.hasMotion {
		out[ChannelMotion] = m.motion
	}
	return out
}

// Serialize implements Message.
func (m *CoverMessage) Serialize() (string, error) {
	if !m.hasMotion {
		return "", fmt.Errorf("%w: cover message has no motion command", ErrUnsupportedCommand)
	}
	return m.serializeLine(string(m.motion))
}

// String returns a compact representation for logging.
func (m *CoverMessage) String() string {
	return fmt.Sprintf("CoverMessage{device:%s motion:%s}", m.DeviceID(), m.motion)
}
