package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mavrelay/pkg/frame"
)

func (r *Router) loop(ctx context.Context) {
	defer r.loopWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Router) handle(ev routerEvent) {
	switch ev.kind {
	case evAddConnection:
		r.handleAddConnection(ev)
	case evBytes:
		r.handleBytes(ev)
	case evClosed:
		delete(r.connections, ev.key)
		r.log.Info("connection closed", zap.String("key", ev.key.ID))
		if ev.key.Kind == KindSerial {
			r.handleSerialClosed(ev.key)
		}
	case evError:
		r.log.Debug("transport error", zap.String("key", ev.key.ID), zap.Error(ev.err))
	case evSerialRetry:
		r.retrySerial(ev.key)
	case evSubscribe:
		r.local.subscribe(ev.query, ev.handle)
		r.watchHandle(ev.handle)
		r.persistSubscriptions()
	case evUnsubscribe:
		r.local.unsubscribe(ev.handle)
		r.persistSubscriptions()
	case evSubscriberDown:
		r.local.unsubscribe(ev.handle)
		delete(r.watched, ev.handle)
		r.persistSubscriptions()
	case evPackAndSend:
		r.handlePackAndSend(ev)
	}
}

func (r *Router) handleAddConnection(ev routerEvent) {
	driver, ok := r.drivers[ev.listener]
	if !ok {
		return
	}
	peerID := ""
	if ev.key.Kind == KindPeer {
		peerID = ev.key.ID
	}
	r.connections[ev.key] = newRemoteConn(ev.key, driver, peerID)
	if ev.key.Kind == KindSerial {
		delete(r.serialAttempts, ev.key)
	}
	r.log.Info("connection established", zap.String("key", ev.key.ID))
}

// handleSerialClosed releases key's device handle back to serialPool
// and schedules a retry after a linear backoff, per §4.2/§5: the pool
// draw for the retry happens back on this loop goroutine
// (retrySerial), never inside the Serial driver's own worker. The
// releasing goroutine only sleeps and enqueues; it touches no shared
// state itself.
func (r *Router) handleSerialClosed(key ConnectionKey) {
	if handle, ok := r.serialHandles[key]; ok {
		r.serialPool.Release(handle)
		delete(r.serialHandles, key)
	}
	delete(r.drivers, key)

	r.serialAttempts[key]++
	wait := min(r.cfg.reconnectInterval()*time.Duration(r.serialAttempts[key]), r.cfg.reconnectMax())

	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
			r.enqueue(routerEvent{kind: evSerialRetry, key: key})
		case <-r.ctx.Done():
		}
	}()
}

// retrySerial re-acquires key's device handle from serialPool and
// relaunches its Serial driver. Acquire happens here, on the loop
// goroutine, satisfying the same constraint handleSerialClosed does.
func (r *Router) retrySerial(key ConnectionKey) {
	spec, ok := r.serialSpecs[key]
	if !ok {
		return
	}
	r.launchTransport(r.transportCtx, spec)
}

func (r *Router) handleBytes(ev routerEvent) {
	conn, ok := r.connections[ev.key]
	if !ok {
		return
	}
	for _, b := range ev.data {
		f, complete, err := conn.parser.Feed(b, r.cfg.Dialect)
		if err != nil {
			r.log.Debug("parser", zap.String("key", ev.key.ID), zap.Error(err))
			continue
		}
		if complete {
			r.routeFrame(f, ev.key)
		}
	}
}

func (r *Router) handlePackAndSend(ev routerEvent) {
	p := ev.packed
	f := frame.Frame{
		Version:         p.version,
		Sequence:        r.local.nextSequence(),
		SourceSystem:    r.local.system,
		SourceComponent: r.local.component,
		MessageID:       p.msgID,
		Payload:         p.payload,
		CRCExtra:        p.crcExtra,
		Target:          p.target,
		Message:         p.msg,
	}
	r.routeFrame(f, localKey)
}

// routeFrame applies the routing policy to f, which arrived from src
// (localKey for a PackAndSend-originated frame). It learns a RouteTable
// entry for non-Local sources, computes the recipient set, delivers to
// Local directly and forwards to every remote recipient.
func (r *Router) routeFrame(f frame.Frame, src ConnectionKey) {
	if src != localKey {
		r.routes[routeKey{f.SourceSystem, f.SourceComponent}] = src
	}

	recipients := r.recipients(f, src)

	if len(recipients) == 1 && recipients[0] == localKey && src == localKey {
		r.log.Debug("destination unreachable", zap.Uint32("message_id", f.MessageID))
	}

	for _, key := range recipients {
		if key == localKey {
			r.local.deliver(f, r.cfg.Dialect)
			continue
		}
		conn, ok := r.connections[key]
		if !ok {
			continue
		}
		if err := conn.forward(f); err != nil {
			r.log.Debug("forward failed", zap.String("key", key.ID), zap.Error(err))
		}
	}
}

// recipients computes the deduplicated set of ConnectionKeys f should
// be delivered to. Broadcast frames go to every connection but src,
// plus Local unless src is Local and EchoLocalBroadcast is off. Targeted
// frames go to Local unconditionally plus whatever RouteTable entries
// match Target.
func (r *Router) recipients(f frame.Frame, src ConnectionKey) []ConnectionKey {
	seen := make(map[ConnectionKey]struct{})
	var out []ConnectionKey
	add := func(k ConnectionKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	if f.Target.Kind == frame.Broadcast {
		for key := range r.connections {
			if key == src {
				continue
			}
			add(key)
		}
		if src == localKey {
			if r.cfg.echoLocalBroadcast() {
				add(localKey)
			}
		} else {
			add(localKey)
		}
		return out
	}

	add(localKey)
	for rk, key := range r.routes {
		if f.Target.Matches(rk.System, rk.Component) {
			add(key)
		}
	}
	return out
}
