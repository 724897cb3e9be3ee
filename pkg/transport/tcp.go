package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPOut is a reconnecting TCP client, adapted from a receive-only
// reconnect loop: dial, read until the connection drops, back off
// linearly, dial again. Unlike a one-way sniffer it also exposes Write,
// guarded by its own mutex against the reconnect loop swapping the live
// net.Conn out from under it.
type TCPOut struct {
	addr string

	reconnect    time.Duration
	reconnectMax time.Duration
	dialTimeout  time.Duration
	bufSize      int

	mu   sync.RWMutex
	conn net.Conn
}

type TCPOption func(*TCPOut)

func WithTCPReconnectInterval(d time.Duration) TCPOption {
	return func(t *TCPOut) {
		if d > 0 {
			t.reconnect = d
		}
	}
}

func WithTCPReconnectMax(d time.Duration) TCPOption {
	return func(t *TCPOut) {
		if d > 0 {
			t.reconnectMax = d
		}
	}
}

func WithTCPDialTimeout(d time.Duration) TCPOption {
	return func(t *TCPOut) {
		if d > 0 {
			t.dialTimeout = d
		}
	}
}

func NewTCPOut(spec Spec, opts ...TCPOption) *TCPOut {
	t := &TCPOut{
		addr:         spec.Addr(),
		reconnect:    1 * time.Second,
		reconnectMax: 30 * time.Second,
		dialTimeout:  5 * time.Second,
		bufSize:      64 * 1024,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TCPOut) Run(ctx context.Context, events chan<- Event) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
		if err != nil {
			sendEvent(ctx, events, Event{Kind: EventError, Err: fmt.Errorf("dial %q: %w", t.addr, err)})
			attempt++
			if !t.sleepBackoff(ctx, attempt) {
				return nil
			}
			continue
		}

		attempt = 0
		t.setConn(conn)
		sendEvent(ctx, events, Event{Kind: EventConnected})

		err = t.readLoop(ctx, conn, events)
		_ = conn.Close()
		t.setConn(nil)

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			sendEvent(ctx, events, Event{Kind: EventError, Err: err})
		}
		sendEvent(ctx, events, Event{Kind: EventDisconnected})
		if !t.sleepBackoff(ctx, 1) {
			return nil
		}
	}
}

func (t *TCPOut) readLoop(ctx context.Context, conn net.Conn, events chan<- Event) error {
	buf := make([]byte, t.bufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		sendEvent(ctx, events, Event{Kind: EventBytes, Data: data})
	}
}

func (t *TCPOut) setConn(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func (t *TCPOut) Write(_ string, payload []byte) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("tcpout %s: %w", t.addr, ErrClosed)
	}
	_, err := conn.Write(payload)
	return err
}

// sleepBackoff waits min(reconnect*attempt, reconnectMax), returning
// false if ctx was canceled while waiting.
func (t *TCPOut) sleepBackoff(ctx context.Context, attempt int) bool {
	wait := min(t.reconnect*time.Duration(attempt), t.reconnectMax)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
