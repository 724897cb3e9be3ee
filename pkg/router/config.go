package router

import (
	"time"

	"go.uber.org/zap"

	"mavrelay/pkg/dialect"
	"mavrelay/pkg/subscription"
)

// Config carries everything Start needs to bring a Router up.
type Config struct {
	// Dialect resolves crc_extra, decodes payloads and encodes outbound
	// messages. Required.
	Dialect dialect.Dialect

	// System and Component identify this router's own LocalConnection as
	// a MAVLink endpoint: the source_system/source_component stamped on
	// frames it originates via PackAndSend.
	System    uint8
	Component uint8

	// Transports is the list of transport configuration strings, e.g.
	// "udpin:127.0.0.1:14550". Each is launched independently; a bad
	// entry fails Start.
	Transports []string

	// EchoLocalBroadcast gates whether a broadcast frame that originated
	// on Local is delivered back to Local's own subscribers. Defaults to
	// true (the historically observed behavior) when Config is zero.
	EchoLocalBroadcast *bool

	// SubscriptionCache, if set, is read at Start to re-install prior
	// subscriptions (the warm-restart path) and written on every
	// Subscribe/Unsubscribe/SubscriberDown. If nil, no cache is kept and
	// subscriptions do not survive a restart of the Router.
	SubscriptionCache *subscription.Cache

	// QueueSize bounds the Router's internal event channel. Defaults to
	// 256.
	QueueSize int

	// ReconnectInterval/ReconnectMax tune TcpOut/Serial backoff; zero
	// values fall back to a 1s interval and a 30s cap.
	ReconnectInterval time.Duration
	ReconnectMax      time.Duration

	Logger *zap.Logger
}

func (c Config) echoLocalBroadcast() bool {
	if c.EchoLocalBroadcast == nil {
		return true
	}
	return *c.EchoLocalBroadcast
}

func (c Config) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return 256
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c Config) reconnectInterval() time.Duration {
	if c.ReconnectInterval > 0 {
		return c.ReconnectInterval
	}
	return time.Second
}

func (c Config) reconnectMax() time.Duration {
	if c.ReconnectMax > 0 {
		return c.ReconnectMax
	}
	return 30 * time.Second
}
