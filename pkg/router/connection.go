package router

import (
	"mavrelay/pkg/frame"
	"mavrelay/pkg/parser"
	"mavrelay/pkg/transport"
)

// remoteConn is a non-Local ConnectionState: a transport driver paired
// with the Parser tracking its inbound byte stream. peerID selects
// which learned client a UdpIn listener's driver should write to; it is
// empty for every other kind, whose driver has exactly one remote.
type remoteConn struct {
	key    ConnectionKey
	driver transport.Driver
	peerID string
	parser *parser.Parser
}

func newRemoteConn(key ConnectionKey, driver transport.Driver, peerID string) *remoteConn {
	return &remoteConn{key: key, driver: driver, peerID: peerID, parser: parser.New()}
}

// forward serializes f and writes it to this connection's remote.
func (c *remoteConn) forward(f frame.Frame) error {
	return c.driver.Write(c.peerID, frame.Marshal(f))
}
