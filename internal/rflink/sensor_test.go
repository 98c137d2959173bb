package rflink

import (
	"errors"
	"testing"
)

func TestSensorDecode(t *testing.T) {
	f := mustParse(t, "20;32;Oregon TempHygro;ID=2D60;TEMP=00be;HUM=42;BAT=OK;")

	msg := &SensorMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if msg.DeviceID() != "oregon temphygro-2d60" {
		t.Errorf("DeviceID() = %q, want oregon temphygro-2d60", msg.DeviceID())
	}

	out := msg.Outputs()
	if out[ChannelTemperature] != 19.0 {
		t.Errorf("Outputs()[temperature] = %v, want 19.0", out[ChannelTemperature])
	}
	if out[ChannelHumidity] != 42 {
		t.Errorf("Outputs()[humidity] = %v, want 42", out[ChannelHumidity])
	}
	if out[ChannelBatteryLow] != false {
		t.Errorf("Outputs()[battery_low] = %v, want false", out[ChannelBatteryLow])
	}
	// Unreported channels are omitted, never defaulted
	if _, ok := out[ChannelLux]; ok {
		t.Error("Outputs() should not contain lux for a temp/hygro frame")
	}
	if _, ok := out[ChannelRain]; ok {
		t.Error("Outputs() should not contain rain for a temp/hygro frame")
	}
}

func TestSensorDecodeNegativeTemperature(t *testing.T) {
	f := mustParse(t, "20;33;Alecto V1;ID=0042;TEMP=80be;BAT=LOW;")

	msg := &SensorMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	out := msg.Outputs()
	if out[ChannelTemperature] != -19.0 {
		t.Errorf("Outputs()[temperature] = %v, want -19.0", out[ChannelTemperature])
	}
	if out[ChannelBatteryLow] != true {
		t.Errorf("Outputs()[battery_low] = %v, want true", out[ChannelBatteryLow])
	}
}

func TestSensorDecodeLuxAndRain(t *testing.T) {
	f := mustParse(t, "20;34;Alecto V1;ID=0042;LUX=1f4;RAIN=001c;")

	msg := &SensorMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	out := msg.Outputs()
	if out[ChannelLux] != uint64(500) {
		t.Errorf("Outputs()[lux] = %v, want 500", out[ChannelLux])
	}
	if out[ChannelRain] != 2.8 {
		t.Errorf("Outputs()[rain] = %v, want 2.8", out[ChannelRain])
	}
}

func TestSensorDecodePartial(t *testing.T) {
	// Corrupt TEMP, valid HUM: humidity still decodes
	f := mustParse(t, "20;35;Oregon TempHygro;ID=2D60;TEMP=zz;HUM=55;")

	msg := &SensorMessage{}
	if err := msg.Decode(f); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(msg.Warnings()) != 1 {
		t.Fatalf("Warnings() = %v, want 1", msg.Warnings())
	}
	out := msg.Outputs()
	if _, ok := out[ChannelTemperature]; ok {
		t.Error("corrupt temperature should not appear in Outputs()")
	}
	if out[ChannelHumidity] != 55 {
		t.Errorf("Outputs()[humidity] = %v, want 55", out[ChannelHumidity])
	}
}

func TestSensorReceiveOnly(t *testing.T) {
	addr := DeviceAddress{Protocol: "Oregon TempHygro", ID: "2D60"}

	msg := &SensorMessage{}
	if err := msg.Encode(addr, "", Command{Action: ActionOn}); !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("Encode() error = %v, want ErrUnsupportedCommand", err)
	}

	msg = &SensorMessage{}
	if _, err := msg.Serialize(); !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("Serialize() error = %v, want ErrUnsupportedCommand", err)
	}
}
