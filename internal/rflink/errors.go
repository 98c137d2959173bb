package rflink

import "errors"

// Domain errors for the RFLink bridge package.
var (
	// ErrMalformedFrame is returned when a received line cannot be split
	// into valid protocol fields. The frame is logged and dropped.
	ErrMalformedFrame = errors.New("rflink: malformed frame")

	// ErrUnsupportedMessageType is returned when no registered variant
	// claims a frame, or a device class has no outbound-capable variant.
	// For inbound traffic this is routine: the transceiver reports every
	// frame it hears, including device classes this bridge does not model.
	ErrUnsupportedMessageType = errors.New("rflink: unsupported message type")

	// ErrConversion is returned when a declared field's raw value cannot
	// be converted to its typed representation. Decoding continues with
	// the remaining fields.
	ErrConversion = errors.New("rflink: value conversion failed")

	// ErrUnsupportedCommand is returned when a command has no outbound
	// mapping for the target variant. The command is not sent.
	ErrUnsupportedCommand = errors.New("rflink: unsupported command")

	// ErrMessageConsumed is returned when Decode or Encode is called on a
	// message instance that has already been decoded or encoded. Messages
	// are single-use.
	ErrMessageConsumed = errors.New("rflink: message already consumed")

	// ErrNotConnected is returned when an operation requires a serial
	// connection but the transport is not connected.
	ErrNotConnected = errors.New("rflink: not connected to transceiver")

	// ErrConnectionFailed is returned when opening the serial port fails.
	ErrConnectionFailed = errors.New("rflink: serial connection failed")

	// ErrSendFailed is returned when writing a command line to the
	// transceiver fails.
	ErrSendFailed = errors.New("rflink: line send failed")

	// ErrUnknownDevice is returned when a command targets a device ID
	// that is not configured on this bridge.
	ErrUnknownDevice = errors.New("rflink: unknown device")
)

// isAny reports whether err matches any of the given sentinel errors.
func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
