package rflink

import "fmt"

// Field keys declared by the energy variant.
const (
	// KeyWatt is the instantaneous power draw, hex watts.
	KeyWatt = "WATT"

	// KeyKWatt is the cumulative energy reading, hex in tenths of kWh.
	KeyKWatt = "KWATT"
)

// EnergyMessage models power meters and energy monitors.
//
//	20;0D;OWL CM113;ID=ea00;WATT=1c9;KWATT=a;
type EnergyMessage struct {
	baseMessage

	power     uint64
	hasPower  bool
	energy    float64
	hasEnergy bool
}

// DeviceClass implements Message.
func (m *EnergyMessage) DeviceClass() string { return ClassEnergy }

// Keys implements Message.
func (m *EnergyMessage) Keys() []string { return []string{KeyWatt, KeyKWatt} }

// Decode implements Message.
func (m *EnergyMessage) Decode(f Frame) error {
	if err := m.beginDecode(f); err != nil {
		return err
	}

	if raw, ok := f.Get(KeyWatt); ok {
		v, err := ParseHex(raw)
		if err != nil {
			m.warn(KeyWatt, err)
		} else {
			m.power = v
			m.hasPower = true
		}
	}

	if raw, ok := f.Get(KeyKWatt); ok {
		v, err := ParseHexTenths(raw)
		if err != nil {
			m.warn(KeyKWatt, err)
		} else {
			m.energy = v
			m.hasEnergy = true
		}
	}

	return nil
}

// Encode implements Message. Energy meters are receive-only.
func (m *EnergyMessage) Encode(_ DeviceAddress, _ string, cmd Command) error {
	return fmt.Errorf("%w: energy meters cannot send %q", ErrUnsupportedCommand, cmd.Action)
}

// Outputs implements Message.
func (m *EnergyMessage) Outputs() map[string]any {
	out := make(map[string]any, 2)
	if m.hasPower {
		out[ChannelPower] = m.power
	}
	if m.hasEnergy {
		out[ChannelEnergy] = m.energy
	}
	return out
}

// Serialize implements Message. Energy state has no outbound form.
func (m *EnergyMessage) Serialize() (string, error) {
	return "", fmt.Errorf("%w: energy messages are receive-only", ErrUnsupportedCommand)
}

// String returns a compact representation for logging.
func (m *EnergyMessage) String() string {
	return fmt.Sprintf("EnergyMessage{device:%s outputs:%v}", m.DeviceID(), m.Outputs())
}
