// Package router is the Router actor: it owns every ConnectionState,
// the learned RouteTable, and the LocalConnection's subscription set,
// applying the MAVLink routing policy to every Frame that a transport
// or a local PackAndSend call produces.
package router

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mavrelay/pkg/frame"
	"mavrelay/pkg/subscription"
	"mavrelay/pkg/transport"
)

type routeKey struct {
	System, Component uint8
}

// Router is a single-consumer event loop: everything that mutates
// connections, routes or subscriptions runs on loop(), never on a
// caller's or transport worker's goroutine.
type Router struct {
	cfg Config
	log *zap.Logger

	events chan routerEvent
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	loopWG sync.WaitGroup

	connections map[ConnectionKey]*remoteConn
	drivers     map[ConnectionKey]transport.Driver
	routes      map[routeKey]ConnectionKey
	local       *localConn
	watched     map[*subscription.Handle]struct{}

	// transportCtx is the errgroup-derived context every transport
	// driver runs under. Retained past Start so a Serial reconnect can
	// launch a fresh driver attempt from the loop goroutine without
	// re-deriving it.
	transportCtx context.Context

	// serialPool, serialSpecs, serialHandles and serialAttempts back the
	// Serial reconnect pattern described in spec §4.2/§5: a device
	// handle is drawn from the pool at the loop, never from the Serial
	// driver's own worker goroutine. All four are loop-owned, like
	// connections/routes/drivers.
	serialPool     *transport.SerialPool
	serialSpecs    map[ConnectionKey]transport.Spec
	serialHandles  map[ConnectionKey]*transport.SerialHandle
	serialAttempts map[ConnectionKey]int
}

// Start parses and launches every configured transport, installs the
// always-present Local connection, re-subscribes whatever
// Config.SubscriptionCache last held, and begins the event loop.
func Start(ctx context.Context, cfg Config) (*Router, error) {
	if cfg.Dialect == nil {
		return nil, ErrNoDialect
	}

	specs := make([]transport.Spec, 0, len(cfg.Transports))
	for _, raw := range cfg.Transports {
		spec, err := transport.ParseSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", raw, ErrInvalidTransportSpec, err)
		}
		specs = append(specs, spec)
	}

	rctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(rctx)

	r := &Router{
		cfg:            cfg,
		log:            cfg.logger(),
		events:         make(chan routerEvent, cfg.queueSize()),
		ctx:            rctx,
		cancel:         cancel,
		group:          group,
		connections:    make(map[ConnectionKey]*remoteConn),
		drivers:        make(map[ConnectionKey]transport.Driver),
		routes:         make(map[routeKey]ConnectionKey),
		local:          newLocalConn(cfg.System, cfg.Component),
		watched:        make(map[*subscription.Handle]struct{}),
		transportCtx:   gctx,
		serialPool:     transport.NewSerialPool(specs),
		serialSpecs:    make(map[ConnectionKey]transport.Spec),
		serialHandles:  make(map[ConnectionKey]*transport.SerialHandle),
		serialAttempts: make(map[ConnectionKey]int),
	}

	for _, spec := range specs {
		r.launchTransport(gctx, spec)
	}

	if cfg.SubscriptionCache != nil {
		for _, sub := range cfg.SubscriptionCache.Get() {
			r.local.subscribe(sub.Query, sub.Handle)
			r.watchHandle(sub.Handle)
		}
	}

	r.loopWG.Add(1)
	go r.loop(rctx)

	return r, nil
}

// Stop cancels the Router's context, waits for the event loop and every
// transport goroutine to exit, and returns. It never touches
// Config.SubscriptionCache: the cache outlives the Router by design.
func (r *Router) Stop(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.loopWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	_ = r.group.Wait()
	return nil
}

// Subscribe registers (q, h) against the LocalConnection's subscription
// set and starts watching h's liveness. The message-type check, if any,
// happens synchronously so InvalidMessageType is reported to the caller
// rather than silently dropped on the loop.
func (r *Router) Subscribe(q subscription.Query, h *subscription.Handle) error {
	if q.MessageType != "" && q.MessageType != "Unknown" {
		if _, ok := r.cfg.Dialect.Lookup(q.MessageType); !ok {
			return fmt.Errorf("%s: %w", q.MessageType, ErrInvalidMessageType)
		}
	}
	r.enqueue(routerEvent{kind: evSubscribe, query: q, handle: h})
	return nil
}

// Unsubscribe removes every subscription registered against h.
func (r *Router) Unsubscribe(h *subscription.Handle) {
	r.enqueue(routerEvent{kind: evUnsubscribe, handle: h})
}

// PackAndSend encodes msg via the configured Dialect and routes it
// exactly as if it had arrived on a synthetic Local inbound event. The
// encode happens synchronously so ErrProtocolUndefined is reported to
// the caller instead of being dropped on the loop; source stamping and
// sequencing happen on the loop, where LocalConnection's counter lives.
func (r *Router) PackAndSend(msg any, version frame.Version) error {
	msgID, payload, crcExtra, target, err := r.cfg.Dialect.Encode(msg, version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolUndefined, err)
	}
	r.enqueue(routerEvent{
		kind: evPackAndSend,
		packed: packedMessage{
			msgID: msgID, payload: payload, crcExtra: crcExtra,
			target: target, version: version, msg: msg,
		},
	})
	return nil
}

func (r *Router) enqueue(ev routerEvent) {
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
	}
}

func (r *Router) watchHandle(h *subscription.Handle) {
	if _, ok := r.watched[h]; ok {
		return
	}
	r.watched[h] = struct{}{}
	go func() {
		select {
		case <-h.Done():
			r.enqueue(routerEvent{kind: evSubscriberDown, handle: h})
		case <-r.ctx.Done():
		}
	}()
}

func (r *Router) persistSubscriptions() {
	if r.cfg.SubscriptionCache != nil {
		r.cfg.SubscriptionCache.Set(r.local.snapshot())
	}
}
