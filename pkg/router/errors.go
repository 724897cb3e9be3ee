package router

import "errors"

// Sentinel errors for the Router's public API. Each is returned bare or
// wrapped with fmt.Errorf("...: %w", err) for call-site context.
var (
	// ErrNoDialect means Start was called without a Dialect.
	ErrNoDialect = errors.New("router: no dialect configured")
	// ErrInvalidTransportSpec means a transport configuration string in
	// Config.Transports could not be parsed.
	ErrInvalidTransportSpec = errors.New("router: invalid transport spec")
	// ErrInvalidMessageType means Subscribe's query names a message type
	// the configured Dialect does not know.
	ErrInvalidMessageType = errors.New("router: invalid message type")
	// ErrProtocolUndefined means PackAndSend's message has no wire
	// mapping in the configured Dialect.
	ErrProtocolUndefined = errors.New("router: message undefined in dialect")
)
