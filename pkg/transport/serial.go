package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const serialReadTimeout = 300 * time.Millisecond
const serialReadBufSize = 2048

// Serial is a device driver for one serial port: open it at the
// configured baud rate, read until the device errors out, then return.
// Unlike TCPOut it does not loop on its own reconnect attempts — a
// device handle is drawn from a Router-loop-owned SerialPool per spec,
// so the loop (not this worker goroutine) decides when and whether to
// launch another attempt. Mirrors the mutex-guarded
// Connect/Close/current-port shape a serial transport needs so reads,
// writes and this single open/close cycle never race over the same
// serial.Port.
type Serial struct {
	device string
	baud   int

	mu   sync.RWMutex
	port serial.Port
}

func NewSerial(spec Spec) *Serial {
	return &Serial{device: spec.Device, baud: spec.Baud}
}

// NewSerialFromHandle builds a Serial driver from a handle drawn out of
// a SerialPool, rather than directly from a Spec, so the pool's dial
// settings (not the original Spec, which the caller may have since
// discarded) govern the open.
func NewSerialFromHandle(h *SerialHandle) *Serial {
	return &Serial{device: h.Device, baud: h.Baud}
}

// Run makes exactly one open-read-close attempt and returns. It never
// backs off or retries internally; the caller (Router.handleSerialClosed)
// owns the backoff and decides whether to acquire another handle and
// launch a fresh Serial for another attempt.
func (s *Serial) Run(ctx context.Context, events chan<- Event) error {
	if ctx.Err() != nil {
		return nil
	}

	port, err := serial.Open(s.device, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		sendEvent(ctx, events, Event{Kind: EventError, Err: fmt.Errorf("open %q: %w", s.device, err)})
		sendEvent(ctx, events, Event{Kind: EventDisconnected})
		return nil
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		sendEvent(ctx, events, Event{Kind: EventError, Err: fmt.Errorf("set read timeout on %q: %w", s.device, err)})
		sendEvent(ctx, events, Event{Kind: EventDisconnected})
		return nil
	}

	s.setPort(port)
	sendEvent(ctx, events, Event{Kind: EventConnected})

	err = s.readLoop(ctx, port, events)
	_ = port.Close()
	s.setPort(nil)

	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		sendEvent(ctx, events, Event{Kind: EventError, Err: err})
	}
	sendEvent(ctx, events, Event{Kind: EventDisconnected})
	return nil
}

func (s *Serial) readLoop(ctx context.Context, port serial.Port, events chan<- Event) error {
	buf := make([]byte, serialReadBufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			// SetReadTimeout elapsed with nothing read; not an error.
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		sendEvent(ctx, events, Event{Kind: EventBytes, Data: data})
	}
}

func (s *Serial) setPort(port serial.Port) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = port
}

func (s *Serial) Write(_ string, payload []byte) error {
	s.mu.RLock()
	port := s.port
	s.mu.RUnlock()
	if port == nil {
		return fmt.Errorf("serial %q: %w", s.device, ErrClosed)
	}
	_, err := port.Write(payload)
	return err
}
