package wsview_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mavrelay/pkg/bridge/wsview"
	"mavrelay/pkg/dialect"
	"mavrelay/pkg/frame"
	"mavrelay/pkg/router"
)

func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestServerBroadcastsFramesToWebSocketClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := router.Start(ctx, router.Config{Dialect: dialect.NewCommon()})
	if err != nil {
		t.Fatalf("start router: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		_ = r.Stop(stopCtx)
	})

	addr := freeTCPAddr(t)
	srv := wsview.NewServer(wsview.Config{Addr: addr}, r, nil)

	runCtx, runCancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(runCtx) }()
	t.Cleanup(func() {
		runCancel()
		<-done
	})

	wsURL := "ws://" + addr + "/"
	var conn *websocket.Conn
	var dialErr error
	for i := 0; i < 50; i++ {
		conn, _, dialErr = websocket.DefaultDialer.Dial(wsURL, nil)
		if dialErr == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if dialErr != nil {
		t.Fatalf("dial ws: %v", dialErr)
	}
	defer conn.Close()

	// Give the server time to register the subscription and this client
	// before the broadcast fires.
	time.Sleep(50 * time.Millisecond)

	if err := r.PackAndSend(dialect.Heartbeat{Type: 4}, frame.V2); err != nil {
		t.Fatalf("pack and send: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got struct {
		MessageID uint32         `json:"message_id"`
		Message   map[string]any `json:"message"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.MessageID != dialect.HeartbeatID {
		t.Fatalf("unexpected message id: %d", got.MessageID)
	}
}
