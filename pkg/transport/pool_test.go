package transport_test

import (
	"testing"

	"mavrelay/pkg/transport"
)

func TestSerialPoolAcquireRelease(t *testing.T) {
	specs := []transport.Spec{
		{Kind: transport.KindSerial, Device: "/dev/ttyUSB0", Baud: 57600},
		{Kind: transport.KindSerial, Device: "/dev/ttyUSB1", Baud: 115200},
		{Kind: transport.KindUDPIn, Raw: "udpin:127.0.0.1:14550"},
	}
	pool := transport.NewSerialPool(specs)

	h, ok := pool.Acquire("/dev/ttyUSB0")
	if !ok {
		t.Fatalf("expected a pre-allocated handle for /dev/ttyUSB0")
	}
	if h.Baud != 57600 {
		t.Fatalf("unexpected baud: %d", h.Baud)
	}

	if _, ok := pool.Acquire("/dev/ttyUSB0"); ok {
		t.Fatalf("expected the already-checked-out handle to be unavailable")
	}

	pool.Release(h)

	h2, ok := pool.Acquire("/dev/ttyUSB0")
	if !ok {
		t.Fatalf("expected the released handle to be acquirable again")
	}
	if h2 != h {
		t.Fatalf("expected Release/Acquire to hand back the same pre-allocated handle")
	}
}

func TestSerialPoolRejectsUnknownDevice(t *testing.T) {
	pool := transport.NewSerialPool(nil)
	if _, ok := pool.Acquire("/dev/ttyUSB9"); ok {
		t.Fatalf("expected no handle for a device that was never configured")
	}
}
