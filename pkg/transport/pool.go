package transport

// SerialHandle is a pre-allocated slot for one serial device path: the
// dial settings a Serial driver needs to open it, plus the checked-out
// flag SerialPool uses to track which caller currently owns it. A
// SerialHandle carries no open serial.Port of its own — the driver
// that holds it opens and closes the underlying port on its own
// goroutine — it exists purely so the pool has something concrete to
// hand out and take back.
type SerialHandle struct {
	Device string
	Baud   int

	checkedOut bool
}

// SerialPool pre-allocates one SerialHandle per configured serial
// device path at construction time, then hands handles out to and
// takes them back from the Router loop as devices connect and
// disconnect. It is only ever touched from that single loop goroutine
// (Acquire/Release are the reconnect pattern: release a handle on
// disconnect, reacquire it once ready to retry), so it carries no lock
// of its own, the same way Router.connections and Router.routes don't.
type SerialPool struct {
	handles map[string]*SerialHandle
}

// NewSerialPool pre-allocates a handle for every distinct serial device
// path among specs, ignoring non-serial specs.
func NewSerialPool(specs []Spec) *SerialPool {
	p := &SerialPool{handles: make(map[string]*SerialHandle)}
	for _, spec := range specs {
		if spec.Kind != KindSerial {
			continue
		}
		if _, ok := p.handles[spec.Device]; ok {
			continue
		}
		p.handles[spec.Device] = &SerialHandle{Device: spec.Device, Baud: spec.Baud}
	}
	return p
}

// Acquire checks out the pre-allocated handle for device. ok is false
// if no handle was pre-allocated for device, or it is already checked
// out by another caller.
func (p *SerialPool) Acquire(device string) (*SerialHandle, bool) {
	h, ok := p.handles[device]
	if !ok || h.checkedOut {
		return nil, false
	}
	h.checkedOut = true
	return h, true
}

// Release returns h to the pool, making it available to Acquire again.
func (p *SerialPool) Release(h *SerialHandle) {
	if h == nil {
		return
	}
	h.checkedOut = false
}
