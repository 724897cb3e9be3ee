package router

import (
	"context"

	"go.uber.org/zap"

	"mavrelay/pkg/transport"
)

// launchTransport builds a driver for spec, registers it under its own
// identity key, and starts two goroutines under ctx's errgroup: one
// running the driver, one translating its Events into routerEvents. A
// transport that fails to construct is logged and skipped rather than
// failing the whole Router. For a Serial spec, the driver is built from
// a handle drawn out of serialPool instead of directly from spec — per
// §4.2/§5, that draw happens here, on the loop goroutine, never inside
// the driver's own worker goroutine.
func (r *Router) launchTransport(ctx context.Context, spec transport.Spec) {
	key := transportKey(spec)

	var driver transport.Driver
	if spec.Kind == transport.KindSerial {
		handle, ok := r.serialPool.Acquire(spec.Device)
		if !ok {
			r.log.Error("acquire serial handle", zap.String("device", spec.Device))
			return
		}
		r.serialSpecs[key] = spec
		r.serialHandles[key] = handle
		driver = transport.NewSerialFromHandle(handle)
	} else if spec.Kind == transport.KindTCPOut {
		driver = transport.NewTCPOut(spec,
			transport.WithTCPReconnectInterval(r.cfg.ReconnectInterval),
			transport.WithTCPReconnectMax(r.cfg.ReconnectMax),
		)
	} else {
		var err error
		driver, err = transport.New(spec)
		if err != nil {
			r.log.Error("launch transport", zap.String("spec", spec.Raw), zap.Error(err))
			return
		}
	}
	r.drivers[key] = driver

	events := make(chan transport.Event, 64)
	multiPeer := spec.Kind == transport.KindUDPIn

	r.group.Go(func() error {
		defer close(events)
		if err := driver.Run(ctx, events); err != nil {
			r.log.Error("transport exited", zap.String("spec", spec.Raw), zap.Error(err))
		}
		return nil
	})
	r.group.Go(func() error {
		for e := range events {
			r.translate(key, multiPeer, e)
		}
		return nil
	})
}

// translate turns a byte-level transport.Event into a routerEvent and
// enqueues it. For a UdpIn listener, the ConnectionKey is derived fresh
// from the peer address on every event since one driver multiplexes
// many peers; every other driver kind is 1:1 with its own key.
func (r *Router) translate(driverKey ConnectionKey, multiPeer bool, e transport.Event) {
	connKey := driverKey
	if multiPeer {
		connKey = ConnectionKey{Kind: KindPeer, ID: e.Peer}
	}

	switch e.Kind {
	case transport.EventConnected:
		r.enqueue(routerEvent{kind: evAddConnection, key: connKey, listener: driverKey})
	case transport.EventBytes:
		r.enqueue(routerEvent{kind: evBytes, key: connKey, listener: driverKey, data: e.Data})
	case transport.EventDisconnected:
		r.enqueue(routerEvent{kind: evClosed, key: connKey})
	case transport.EventError:
		r.enqueue(routerEvent{kind: evError, key: driverKey, err: e.Err})
	}
}

// transportKey derives the ConnectionKey a driver registers itself
// under in Router.drivers. For UdpIn this is the listener's own
// identity, never a connection key in Router.connections; for every
// other kind it doubles as the connection key once AddConnection fires.
func transportKey(spec transport.Spec) ConnectionKey {
	switch spec.Kind {
	case transport.KindSerial:
		return ConnectionKey{Kind: KindSerial, ID: spec.Device}
	default:
		return ConnectionKey{Kind: KindSocket, ID: spec.Raw}
	}
}
