// Package transport terminates the raw byte-stream drivers (UDP server,
// UDP client, TCP client, serial) that the router layer reads frames
// from and writes frames to. It knows nothing about MAVLink framing —
// that is the parser package's job — only about getting bytes on and
// off the wire, and about reconnecting when a stream drops.
package transport

import (
	"context"
	"errors"
)

// ErrInvalidSpec is returned by ParseSpec for an unparseable transport
// configuration string.
var ErrInvalidSpec = errors.New("transport: invalid configuration string")

// ErrClosed is returned (wrapped) by a driver's Write when the driver has
// no live connection or socket to write to.
var ErrClosed = errors.New("transport: connection closed")

// Kind identifies which of the four driver shapes a Spec describes.
type Kind uint8

const (
	KindUDPIn Kind = iota
	KindUDPOut
	KindTCPOut
	KindSerial
)

func (k Kind) String() string {
	switch k {
	case KindUDPIn:
		return "udpin"
	case KindUDPOut:
		return "udpout"
	case KindTCPOut:
		return "tcpout"
	case KindSerial:
		return "serial"
	default:
		return "unknown"
	}
}

// EventKind tags what a driver is reporting in an Event.
type EventKind uint8

const (
	// EventConnected reports a newly usable remote: for UdpOut/TcpOut/
	// Serial this fires once per (re)connection; for UdpIn it fires the
	// first time a given Peer is observed.
	EventConnected EventKind = iota
	// EventBytes carries inbound bytes from Peer.
	EventBytes
	// EventDisconnected reports that a previously connected remote (or,
	// for UdpIn, a single learned peer) is no longer reachable. The
	// driver itself may keep running and reconnect.
	EventDisconnected
	// EventError reports a non-fatal driver error worth logging; the
	// driver continues (or is about to retry).
	EventError
)

// Event is one occurrence a Driver posts to its events channel. Peer
// identifies the remote the event concerns: for UdpIn it is the
// "ip:port" of a learned client; for UdpOut/TcpOut/Serial, which have
// exactly one remote, it is always "".
type Event struct {
	Kind EventKind
	Peer string
	Data []byte
	Err  error
}

// Driver runs one transport's I/O loop until ctx is canceled, posting
// Events as connections come up, deliver bytes, and go down. Run never
// returns before ctx is done except on an unrecoverable setup failure
// (e.g. a UdpIn listener's local address is already in use), and for
// Serial, whose Run returns after a single open-read-close attempt.
type Driver interface {
	Run(ctx context.Context, events chan<- Event) error
	// Write sends payload to peer. peer is ignored (the driver's single
	// remote is used) for everything but UdpIn, where it selects which
	// learned client receives the datagram.
	Write(peer string, payload []byte) error
}
