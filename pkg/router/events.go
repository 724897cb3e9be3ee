package router

import (
	"mavrelay/pkg/frame"
	"mavrelay/pkg/subscription"
)

type eventKind uint8

const (
	evAddConnection eventKind = iota
	evBytes
	evClosed
	evError
	evSubscribe
	evUnsubscribe
	evSubscriberDown
	evPackAndSend
	evSerialRetry
)

// packedMessage carries PackAndSend's already-encoded wire fields across
// to the loop, which only needs to stamp source/sequence before routing.
type packedMessage struct {
	msgID    uint32
	payload  []byte
	crcExtra uint8
	target   frame.Target
	version  frame.Version
	msg      any
}

// routerEvent is the Router's single mailbox item type. Only the fields
// relevant to kind are populated.
type routerEvent struct {
	kind eventKind

	// key identifies the ConnectionState this event concerns: the UdpIn
	// per-peer key for a learned client, or a driver's own key for
	// UdpOut/TcpOut/Serial.
	key ConnectionKey
	// listener identifies the transport.Driver instance that produced
	// this event, used to look it up in Router.drivers. Equal to key for
	// every driver kind except UdpIn, where it is the listener's own key
	// and key is the learned peer's.
	listener ConnectionKey

	data []byte
	err  error

	query  subscription.Query
	handle *subscription.Handle

	packed packedMessage
}
