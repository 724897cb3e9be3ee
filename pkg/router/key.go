package router

// ConnectionKind tags which of the taxonomy's shapes a ConnectionKey
// identifies.
type ConnectionKind uint8

const (
	// KindLocal is the single always-present in-process connection.
	KindLocal ConnectionKind = iota
	// KindSocket is a single-remote UdpOut or TcpOut connection (and the
	// driver key of a UdpIn listener), identified by its transport
	// configuration string.
	KindSocket
	// KindPeer is one learned client of a UdpIn listener, identified by
	// that client's observed "ip:port".
	KindPeer
	// KindSerial is a Serial connection, identified by its device path.
	KindSerial
)

func (k ConnectionKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindSocket:
		return "socket"
	case KindPeer:
		return "peer"
	case KindSerial:
		return "serial"
	default:
		return "unknown"
	}
}

// ConnectionKey is the comparable identity the Router uses both as its
// connections map key and as the RouteTable's value.
type ConnectionKey struct {
	Kind ConnectionKind
	ID   string
}

// localKey is the one ConnectionKey of kind KindLocal; it carries no
// per-instance identity so every Router has exactly one.
var localKey = ConnectionKey{Kind: KindLocal}
