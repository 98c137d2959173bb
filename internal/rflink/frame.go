package rflink

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Node directives identifying the direction of an RFLink frame.
const (
	// NodeFromGateway marks frames sent by the transceiver to the host.
	NodeFromGateway = "20"

	// NodeToGateway marks command frames sent by the host to the transceiver.
	NodeToGateway = "10"

	// NodeEcho marks frames the transceiver echoes back after transmitting.
	NodeEcho = "11"
)

// Frame layout constants.
const (
	// minInboundFields is the minimum token count for a 20-frame:
	// node directive, sequence counter, protocol name.
	minInboundFields = 3

	// fieldDelimiter separates tokens on the wire.
	fieldDelimiter = ";"

	// valueDelimiter separates a field key from its raw value.
	valueDelimiter = "="
)

// Field is a single KEY=VALUE token from a protocol line. The raw value is
// kept verbatim; each message variant applies its own conversion semantics.
type Field struct {
	Key   string
	Value string
}

// Frame is a parsed RFLink protocol line.
//
// Positional fields (node directive, sequence counter, protocol name) are
// transport-owned; the ordered KEY=VALUE fields carry the semantic payload.
// A Frame is transient: parsed once per received line and discarded after
// dispatch.
type Frame struct {
	// Node is the node directive ("20" for received frames).
	Node string

	// Sequence is the transceiver's rolling hex frame counter.
	Sequence string

	// Protocol is the RF protocol name (e.g. "NewKaku", "Oregon TempHygro").
	Protocol string

	// Fields holds the KEY=VALUE tokens in wire order. Keys are unique per
	// frame. Unknown keys are preserved here and ignored by variants that
	// do not declare them.
	Fields []Field

	// Timestamp records when the frame was received.
	Timestamp time.Time
}

// ParseFrame parses a raw protocol line into a Frame.
//
// Expected grammar (received frames):
//
//	20;<seq>;<protocol>;KEY=VALUE;...;
//
// The trailing delimiter is optional. Whitespace around the line is trimmed;
// keys are case-sensitive and raw values are preserved verbatim.
//
// Returns ErrMalformedFrame if the line is empty, has too few positional
// fields, carries an unknown node directive, or contains a payload token
// without a key/value separator.
func ParseFrame(raw string) (Frame, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Frame{}, fmt.Errorf("%w: empty line", ErrMalformedFrame)
	}

	tokens := strings.Split(strings.TrimSuffix(line, fieldDelimiter), fieldDelimiter)
	if len(tokens) < minInboundFields {
		return Frame{}, fmt.Errorf("%w: %d fields, need at least %d", ErrMalformedFrame, len(tokens), minInboundFields)
	}

	node := strings.TrimSpace(tokens[0])
	switch node {
	case NodeFromGateway:
	case NodeToGateway, NodeEcho:
		// Command lines use positional fields, not KEY=VALUE.
		return parseCommandFrame(node, tokens)
	default:
		return Frame{}, fmt.Errorf("%w: unexpected node directive %q", ErrMalformedFrame, node)
	}

	f := Frame{
		Node:      node,
		Sequence:  strings.TrimSpace(tokens[1]),
		Protocol:  strings.TrimSpace(tokens[2]),
		Timestamp: time.Now(),
	}
	if f.Protocol == "" {
		return Frame{}, fmt.Errorf("%w: empty protocol name", ErrMalformedFrame)
	}

	seen := make(map[string]bool, len(tokens)-minInboundFields)
	for _, tok := range tokens[minInboundFields:] {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key, value, ok := strings.Cut(tok, valueDelimiter)
		if !ok {
			return Frame{}, fmt.Errorf("%w: token %q is not KEY=VALUE", ErrMalformedFrame, tok)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return Frame{}, fmt.Errorf("%w: empty key in token %q", ErrMalformedFrame, tok)
		}
		if seen[key] {
			return Frame{}, fmt.Errorf("%w: duplicate key %q", ErrMalformedFrame, key)
		}
		seen[key] = true
		f.Fields = append(f.Fields, Field{Key: key, Value: value})
	}

	return f, nil
}

// parseCommandFrame parses the positional layout of a command (or echoed
// command) line into the same Frame shape as a received frame:
//
//	10;<protocol>;<id>;[<switch>;]<command>;
//
// The positional fields are mapped onto synthetic ID/SWITCH/CMD fields so
// command lines round-trip through the same variant decode path. A numeric
// command position is a dim level and maps to SET_LEVEL, matching how the
// transceiver interprets it.
func parseCommandFrame(node string, tokens []string) (Frame, error) {
	const minCommandFields = 4 // node, protocol, id, command
	if len(tokens) < minCommandFields {
		return Frame{}, fmt.Errorf("%w: command line has %d fields, need at least %d",
			ErrMalformedFrame, len(tokens), minCommandFields)
	}

	f := Frame{
		Node:      node,
		Protocol:  strings.TrimSpace(tokens[1]),
		Timestamp: time.Now(),
	}
	if f.Protocol == "" {
		return Frame{}, fmt.Errorf("%w: empty protocol name", ErrMalformedFrame)
	}

	f.Fields = append(f.Fields, Field{Key: KeyID, Value: strings.TrimSpace(tokens[2])})
	if len(tokens) > minCommandFields {
		f.Fields = append(f.Fields, Field{Key: KeySwitch, Value: strings.TrimSpace(tokens[3])})
	}

	command := strings.TrimSpace(tokens[len(tokens)-1])
	key := KeyCmd
	if _, err := strconv.Atoi(command); err == nil {
		key = KeySetLevel
	}
	f.Fields = append(f.Fields, Field{Key: key, Value: command})

	return f, nil
}

// Get returns the raw value for a field key and whether it is present.
func (f Frame) Get(key string) (string, bool) {
	for _, fld := range f.Fields {
		if fld.Key == key {
			return fld.Value, true
		}
	}
	return "", false
}

// Has reports whether the frame carries the given field key.
func (f Frame) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Keys returns the field keys in wire order.
func (f Frame) Keys() []string {
	keys := make([]string, len(f.Fields))
	for i, fld := range f.Fields {
		keys[i] = fld.Key
	}
	return keys
}

// IsControl reports whether the frame is transceiver chatter rather than a
// device event: the startup banner, PONG replies, and command confirmations.
// Control frames are not dispatched to message variants.
func (f Frame) IsControl() bool {
	switch {
	case strings.Contains(f.Protocol, "Nodo RadioFrequencyLink"):
		return true // startup banner, e.g. "Nodo RadioFrequencyLink - RFLink Gateway V1.1 - R48"
	case f.Protocol == "PONG" || f.Protocol == "OK" || f.Protocol == "CMD UNKNOWN":
		return true
	}
	return false
}

// String returns a compact representation for logging.
func (f Frame) String() string {
	var b strings.Builder
	b.WriteString("Frame{")
	b.WriteString(f.Protocol)
	for _, fld := range f.Fields {
		b.WriteString(" ")
		b.WriteString(fld.Key)
		b.WriteString("=")
		b.WriteString(fld.Value)
	}
	b.WriteString("}")
	return b.String()
}
