// Package wsview is a read-only WebSocket view of a Router's local
// subscription feed: it subscribes like any other in-process consumer
// and republishes every delivered frame, JSON-encoded, to connected
// browser/tooling clients. It never forwards anything back into the
// router it observes.
package wsview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mavrelay/pkg/router"
	"mavrelay/pkg/subscription"
)

// Config carries the one setting the bridge needs: where to listen.
type Config struct {
	Addr string
}

const DefaultAddr = "127.0.0.1:8765"

func (c Config) addr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return DefaultAddr
}

// Server upgrades incoming HTTP connections to WebSocket and fans the
// subscribed frame stream out to every connected client.
type Server struct {
	cfg    Config
	router *router.Router
	log    *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewServer returns a bridge that will subscribe to r once Run starts.
func NewServer(cfg Config, r *router.Router, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, router: r, log: log, clients: make(map[*client]struct{})}
}

// Run subscribes to the router's local feed, serves WebSocket upgrades
// on cfg.Addr, and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	handle := subscription.NewHandle(256)
	if err := s.router.Subscribe(subscription.Query{AsFrame: true}, handle); err != nil {
		return fmt.Errorf("wsview: subscribe: %w", err)
	}
	defer s.router.Unsubscribe(handle)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	httpServer := &http.Server{Addr: s.cfg.addr(), Handler: mux}

	go s.broadcastLoop(ctx, handle)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		handle.Terminate()
		return nil
	case err := <-errCh:
		handle.Terminate()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn)
	s.addClient(c)
	go c.writeLoop()
	c.drainLoop() // blocks until the client disconnects; wsview accepts no client messages.

	c.close()
	s.removeClient(c)
}

func (s *Server) broadcastLoop(ctx context.Context, h *subscription.Handle) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-h.Deliveries():
			if !ok {
				return
			}
			s.broadcast(d)
		}
	}
}

func (s *Server) broadcast(d subscription.Delivery) {
	payload, err := json.Marshal(frameView{
		Version:         uint8(d.Frame.Version),
		Sequence:        d.Frame.Sequence,
		SourceSystem:    d.Frame.SourceSystem,
		SourceComponent: d.Frame.SourceComponent,
		MessageID:       d.Frame.MessageID,
		Signed:          d.Frame.Signed,
		Message:         d.Frame.Message,
	})
	if err != nil {
		s.log.Debug("marshal frame for wsview", zap.Error(err))
		return
	}

	for _, c := range s.snapshotClients() {
		c.trySend(payload)
	}
}

type frameView struct {
	Version         uint8  `json:"version"`
	Sequence        uint8  `json:"sequence"`
	SourceSystem    uint8  `json:"source_system"`
	SourceComponent uint8  `json:"source_component"`
	MessageID       uint32 `json:"message_id"`
	Signed          bool   `json:"signed"`
	Message         any    `json:"message,omitempty"`
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

const clientSendBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

// drainLoop reads (and discards) until the connection closes, the
// standard way to detect a client disconnect on a read-only endpoint.
func (c *client) drainLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) trySend(msg []byte) {
	defer func() {
		_ = recover() // send on a channel close() raced closed; the client is gone either way.
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
