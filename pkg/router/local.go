package router

import (
	"mavrelay/pkg/dialect"
	"mavrelay/pkg/frame"
	"mavrelay/pkg/subscription"
)

// localConn is the Local connection: no transport, no Parser. It holds
// the outbound sequence counter for locally originated frames and the
// subscription set local consumers register against. Every mutation
// happens on the Router's single event loop goroutine, so none of this
// needs its own lock.
type localConn struct {
	system    uint8
	component uint8
	seq       uint8
	subs      []subscription.Subscription
}

func newLocalConn(system, component uint8) *localConn {
	return &localConn{system: system, component: component}
}

// nextSequence returns the sequence number to stamp on the next locally
// originated frame, then advances the counter. uint8 wraps at 256 on its
// own, giving the full 0..255 range.
func (l *localConn) nextSequence() uint8 {
	seq := l.seq
	l.seq++
	return seq
}

// deliver fans f out to every subscription whose query matches.
func (l *localConn) deliver(f frame.Frame, d dialect.Dialect) {
	typeName := resolveTypeName(f, d)
	for _, sub := range l.subs {
		if !sub.Query.Matches(typeName, f) {
			continue
		}
		delivery := subscription.Delivery{Message: f.Message}
		if sub.Query.AsFrame {
			delivery = subscription.Delivery{Frame: f}
		}
		sub.Handle.Send(delivery)
	}
}

func resolveTypeName(f frame.Frame, d dialect.Dialect) string {
	if f.Message == nil {
		return "Unknown"
	}
	if _, ok := f.Message.(dialect.Unknown); ok {
		return "Unknown"
	}
	if name, ok := d.TypeName(f.Message); ok {
		return name
	}
	return "Unknown"
}

// subscribe adds (q, h) if not already present; identical (query,
// handle) pairs are deduplicated by exact equality.
func (l *localConn) subscribe(q subscription.Query, h *subscription.Handle) {
	for _, s := range l.subs {
		if s.Handle == h && s.Query == q {
			return
		}
	}
	l.subs = append(l.subs, subscription.Subscription{Query: q, Handle: h})
}

// unsubscribe removes every subscription registered against h.
func (l *localConn) unsubscribe(h *subscription.Handle) {
	out := l.subs[:0]
	for _, s := range l.subs {
		if s.Handle != h {
			out = append(out, s)
		}
	}
	l.subs = out
}

func (l *localConn) snapshot() []subscription.Subscription {
	out := make([]subscription.Subscription, len(l.subs))
	copy(out, l.subs)
	return out
}

func (l *localConn) restore(subs []subscription.Subscription) {
	l.subs = append([]subscription.Subscription(nil), subs...)
}
