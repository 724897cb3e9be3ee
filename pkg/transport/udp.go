package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

const udpReadBufSize = 2048

// UDPIn listens on a local address and tracks one remote per peer that
// has sent it a datagram, the way spec's UdpIn variant is "one socket,
// many peers."
type UDPIn struct {
	addr string

	mu    sync.RWMutex
	conn  *net.UDPConn
	peers map[string]*net.UDPAddr
}

// NewUDPIn returns a driver that listens on spec.Addr().
func NewUDPIn(spec Spec) *UDPIn {
	return &UDPIn{addr: spec.Addr(), peers: make(map[string]*net.UDPAddr)}
}

func (d *UDPIn) Run(ctx context.Context, events chan<- Event) error {
	laddr, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", d.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", d.addr, err)
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, udpReadBufSize)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sendEvent(ctx, events, Event{Kind: EventError, Err: err})
			continue
		}
		if n == 0 {
			continue
		}

		peer := raddr.String()
		d.mu.Lock()
		_, known := d.peers[peer]
		if !known {
			d.peers[peer] = raddr
		}
		d.mu.Unlock()
		if !known {
			sendEvent(ctx, events, Event{Kind: EventConnected, Peer: peer})
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		sendEvent(ctx, events, Event{Kind: EventBytes, Peer: peer, Data: data})
	}
}

// Write sends payload to peer. An empty peer broadcasts to every
// currently learned peer, mirroring the spec's "forward sends the frame
// to every known peer of this listener."
func (d *UDPIn) Write(peer string, payload []byte) error {
	d.mu.RLock()
	conn := d.conn
	defer d.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("udpin %s: %w", d.addr, ErrClosed)
	}

	if peer != "" {
		raddr, ok := d.peers[peer]
		if !ok {
			return fmt.Errorf("udpin %s: unknown peer %q", d.addr, peer)
		}
		_, err := conn.WriteToUDP(payload, raddr)
		return err
	}

	var firstErr error
	for _, raddr := range d.peers {
		if _, err := conn.WriteToUDP(payload, raddr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UDPOut is a fixed single-remote UDP client: one socket, one peer.
type UDPOut struct {
	addr string

	mu   sync.RWMutex
	conn *net.UDPConn
}

func NewUDPOut(spec Spec) *UDPOut {
	return &UDPOut{addr: spec.Addr()}
}

func (d *UDPOut) Run(ctx context.Context, events chan<- Event) error {
	raddr, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", d.addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial %q: %w", d.addr, err)
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	sendEvent(ctx, events, Event{Kind: EventConnected})

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, udpReadBufSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sendEvent(ctx, events, Event{Kind: EventError, Err: err})
			continue
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		sendEvent(ctx, events, Event{Kind: EventBytes, Data: data})
	}
}

func (d *UDPOut) Write(_ string, payload []byte) error {
	d.mu.RLock()
	conn := d.conn
	d.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("udpout %s: %w", d.addr, ErrClosed)
	}
	_, err := conn.Write(payload)
	return err
}

func sendEvent(ctx context.Context, events chan<- Event, e Event) {
	select {
	case events <- e:
	case <-ctx.Done():
	}
}
