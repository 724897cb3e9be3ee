// Package subscription implements the local pub/sub side of the
// router: standing queries against the decoded frame stream, delivery
// handles whose liveness drives automatic cleanup, and a small
// warm-restart cache so a Router restart does not lose subscriber
// intent.
package subscription

import (
	"sync"

	"mavrelay/pkg/frame"
)

// Query is a standing filter over the locally-visible frame stream. The
// zero value is the all-wildcard query (matches everything, delivering
// decoded messages rather than whole frames).
type Query struct {
	// MessageType is the dialect type name (as returned by
	// dialect.Dialect.TypeName, or "Unknown" for undecoded frames).
	// Empty means any message type.
	MessageType string

	SourceSystem    uint8 // 0 = any
	SourceComponent uint8 // 0 = any
	TargetSystem    uint8 // 0 = any
	TargetComponent uint8 // 0 = any

	// AsFrame requests delivery of the whole Frame rather than just the
	// decoded message.
	AsFrame bool
}

// Matches reports whether f, whose decoded message type name is
// typeName ("Unknown" if decoding failed), satisfies q.
func (q Query) Matches(typeName string, f frame.Frame) bool {
	if q.MessageType != "" && q.MessageType != typeName {
		return false
	}
	if q.SourceSystem != 0 && q.SourceSystem != f.SourceSystem {
		return false
	}
	if q.SourceComponent != 0 && q.SourceComponent != f.SourceComponent {
		return false
	}
	if q.TargetSystem != 0 {
		if f.Target.Kind != frame.System || f.Target.System != q.TargetSystem {
			return false
		}
	}
	if q.TargetComponent != 0 {
		if f.Target.Kind != frame.Component || f.Target.Component != q.TargetComponent {
			return false
		}
	}
	return true
}

// Delivery is what a Handle receives for a matching frame: either the
// whole Frame (Query.AsFrame) or just its decoded Message.
type Delivery struct {
	Frame   frame.Frame
	Message any
}

// Handle is the opaque delivery endpoint a subscriber holds. Identity is
// by pointer: two Handles are never equal even with identical queries,
// matching spec's "subscriber_handle: opaque ... monitored for
// liveness."
type Handle struct {
	delivery chan Delivery
	done     chan struct{}
	once     sync.Once
}

// NewHandle returns a Handle whose delivery channel has the given
// buffer depth. A full buffer causes Send to drop the delivery rather
// than block the Router loop.
func NewHandle(buffer int) *Handle {
	if buffer < 1 {
		buffer = 1
	}
	return &Handle{
		delivery: make(chan Delivery, buffer),
		done:     make(chan struct{}),
	}
}

// Deliveries is the channel matching frames/messages arrive on.
func (h *Handle) Deliveries() <-chan Delivery { return h.delivery }

// Done fires exactly once when the handle becomes un-deliverable,
// mirroring spec's liveness observation that enqueues SubscriberDown.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Terminate marks the handle dead. Safe to call more than once and from
// any goroutine.
func (h *Handle) Terminate() {
	h.once.Do(func() { close(h.done) })
}

// Alive reports whether Terminate has not yet been called.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Send attempts a non-blocking delivery, returning false if the
// handle's buffer is full or it has already been terminated.
func (h *Handle) Send(d Delivery) bool {
	if !h.Alive() {
		return false
	}
	select {
	case h.delivery <- d:
		return true
	default:
		return false
	}
}

// Subscription is one (query, handle) registration.
type Subscription struct {
	Query  Query
	Handle *Handle
}
