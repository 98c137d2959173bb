// Package rflink implements the RFLink protocol bridge for Gray Logic.
//
// This package provides connectivity to an RFLink Gateway transceiver over a
// serial link. It translates between Gray Logic's internal representation and
// RFLink's line-oriented ASCII protocol.
//
// # Architecture
//
// The bridge operates as a translator between two buses:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │  RFLink Bridge  │  serial
//	│      Core       │◄────────►│   (this pkg)    │◄────────► 433 MHz devices
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Read protocol lines from the RFLink transceiver and decode them into
//     typed messages (switch, dimmer, cover, sensor, energy)
//   - Encode Gray Logic commands into RFLink command lines and transmit them,
//     applying the configured repeat policy for lossy radio links
//   - Match decoded frames to configured devices and publish state over MQTT
//   - Publish health status and transceiver statistics
//
// # Wire Protocol
//
// RFLink frames are semicolon-delimited ASCII lines. Received frames carry
// the node directive 20, a hex sequence counter, the RF protocol name, and
// ordered KEY=VALUE fields:
//
//	20;2D;NewKaku;ID=00004d;SWITCH=1;CMD=ON;
//
// Transmitted frames use node directive 10 and omit the sequence counter:
//
//	10;NewKaku;00004d;1;ON;
//
// # Message Dispatch
//
// Frames carry no explicit type token. The variant registry selects a message
// type by declared-key specificity (a frame with SET_LEVEL is a dimmer, one
// with only SWITCH/CMD is a switch), with explicit overrides for RF protocol
// families such as RTS covers. Frames no registered variant claims yield
// ErrUnsupportedMessageType — an expected, recoverable condition on a shared
// radio band.
//
// # Thread Safety
//
// Inbound frames are decoded sequentially on the transport's reader
// goroutine, preserving event order. Outbound command repeats block only the
// issuing caller. The variant registry is populated at init and is safe for
// unsynchronised concurrent reads.
//
// # References
//
//   - RFLink protocol reference: http://www.rflink.nl/protref.php
//   - Gray Logic bridge interface: docs/architecture/bridge-interface.md
package rflink
