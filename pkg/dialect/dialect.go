// Package dialect defines the contract a MAVLink dialect must satisfy and
// ships a reflect-based registry implementation good enough to decode and
// encode a handful of common.xml messages without hand-written (de)coders
// per message. Per-dialect code generation from the upstream XML
// definitions is an external concern — this package only consumes the
// result, a Dialect implementation, the way the router is meant to.
package dialect

import (
	"mavrelay/pkg/frame"
)

// Dialect exposes everything the router needs to turn wire bytes into a
// decoded message and back, without knowing the concrete message set.
type Dialect interface {
	// Name identifies the dialect, e.g. "common".
	Name() string
	// CRCExtra returns the CRC_EXTRA byte mixed into the checksum for
	// msgID, or ok=false if msgID is not known to this dialect.
	CRCExtra(msgID uint32) (extra uint8, ok bool)
	// PayloadLength returns the declared, untruncated payload length for
	// msgID, or ok=false if msgID is not known.
	PayloadLength(msgID uint32) (length uint8, ok bool)
	// Decode turns a zero-padded payload into a structured message and
	// derives its Target. ok=false means msgID is not known to this
	// dialect; the caller treats the frame as an Unknown.
	Decode(msgID uint32, payload []byte) (msg any, target frame.Target, ok bool)
	// Encode turns a structured message into wire fields. err is
	// ErrUndefined-wrapping when msg is not known or ambiguous.
	Encode(msg any, version frame.Version) (msgID uint32, payload []byte, crcExtra uint8, target frame.Target, err error)
	// Lookup resolves a human-readable message type name (as used in a
	// subscription Query) to its numeric id.
	Lookup(name string) (msgID uint32, ok bool)
	// TypeName returns the message type name for a decoded value, the way
	// Lookup's argument would round-trip back to Lookup.
	TypeName(msg any) (name string, ok bool)
}

// Unknown is the sentinel value substituted for Frame.Message when no
// registered type exists for a message id — mirrors spec's UnknownMessage.
type Unknown struct {
	MessageID uint32
	Payload   []byte
}
