package rflink

import "fmt"

// Field keys declared by the sensor variant.
const (
	// KeyTemp is the temperature reading, signed hex in tenths of °C.
	KeyTemp = "TEMP"

	// KeyHum is the relative humidity, decimal percent.
	KeyHum = "HUM"

	// KeyLux is the light level, hex lux.
	KeyLux = "LUX"

	// KeyRain is the rain gauge reading, hex in tenths of mm.
	KeyRain = "RAIN"

	// KeyBat is the battery status (OK or LOW).
	KeyBat = "BAT"
)

// SensorMessage models weather and environment sensors.
//
// Sensors are inbound-only; commands cannot be sent to them. A frame rarely
// carries every declared key — a thermometer reports TEMP and BAT, a hygro
// station adds HUM — so each reading is tracked independently and only
// present readings appear in Outputs.
//
//	20;32;Oregon TempHygro;ID=2D60;TEMP=00be;HUM=42;BAT=OK;
type SensorMessage struct {
	baseMessage

	temperature    float64
	hasTemperature bool
	humidity       int
	hasHumidity    bool
	lux            uint64
	hasLux         bool
	rain           float64
	hasRain        bool
	batteryLow     bool
	hasBattery     bool
}

// DeviceClass implements Message.
func (m *SensorMessage) DeviceClass() string { return ClassSensor }

// Keys implements Message.
func (m *SensorMessage) Keys() []string {
	return []string{KeyTemp, KeyHum, KeyLux, KeyRain, KeyBat}
}

// Decode implements Message.
func (m *SensorMessage) Decode(f Frame) error {
	if err := m.beginDecode(f); err != nil {
		return err
	}

	if raw, ok := f.Get(KeyTemp); ok {
		v, err := ParseSignedHexTenths(raw)
		if err != nil {
			m.warn(KeyTemp, err)
		} else {
			m.temperature = v
			m.hasTemperature = true
		}
	}

	if raw, ok := f.Get(KeyHum); ok {
		v, err := ParseDecimal(raw)
		if err != nil {
			m.warn(KeyHum, err)
		} else {
			m.humidity = v
			m.hasHumidity = true
		}
	}

	if raw, ok := f.Get(KeyLux); ok {
		v, err := ParseHex(raw)
		if err != nil {
			m.warn(KeyLux, err)
		} else {
			m.lux = v
			m.hasLux = true
		}
	}

	if raw, ok := f.Get(KeyRain); ok {
		v, err := ParseHexTenths(raw)
		if err != nil {
			m.warn(KeyRain, err)
		} else {
			m.rain = v
			m.hasRain = true
		}
	}

	if raw, ok := f.Get(KeyBat); ok {
		v, err := ParseBattery(raw)
		if err != nil {
			m.warn(KeyBat, err)
		} else {
			m.batteryLow = v
			m.hasBattery = true
		}
	}

	return nil
}

// Encode implements Message. Sensors are receive-only.
func (m *SensorMessage) Encode(_ DeviceAddress, _ string, cmd Command) error {
	return fmt.Errorf("%w: sensors cannot send %q", ErrUnsupportedCommand, cmd.Action)
}

// Outputs implements Message.
func (m *SensorMessage) Outputs() map[string]any {
	out := make(map[string]any, 5)
	if m.hasTemperature {
		out[ChannelTemperature] = m.temperature
	}
	if m.hasHumidity {
		out[ChannelHumidity] = m.humidity
	}
	if m.hasLux {
		out[ChannelLux] = m.lux
	}
	if m.hasRain {
		out[ChannelRain] = m.rain
	}
	if m.hasBattery {
		out[ChannelBatteryLow] = m.batteryLow
	}
	return out
}

// Serialize implements Message. Sensor state has no outbound form.
func (m *SensorMessage) Serialize() (string, error) {
	return "", fmt.Errorf("%w: sensor messages are receive-only", ErrUnsupportedCommand)
}

// String returns a compact representation for logging.
func (m *SensorMessage) String() string {
	return fmt.Sprintf("SensorMessage{device:%s outputs:%v}", m.DeviceID(), m.Outputs())
}
