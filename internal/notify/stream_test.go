package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamDeliversCountEvents(t *testing.T) {
	authCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification_count","count":4}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"presence","count":9}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification_count","count":5}`))
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	s, err := Dial(context.Background(), wsURL(srv), "token-1", zap.NewNop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	if got := <-authCh; got != "Bearer token-1" {
		t.Errorf("Authorization = %q, want bearer token", got)
	}

	var counts []int
	for ev := range s.Events() {
		counts = append(counts, ev.Count)
	}
	if len(counts) != 2 || counts[0] != 4 || counts[1] != 5 {
		t.Errorf("counts = %v, want [4 5] with the foreign frame skipped", counts)
	}
}

func TestStreamCloseIdempotent(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		// Hold the connection until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	})

	s, err := Dial(context.Background(), wsURL(srv), "token-1", zap.NewNop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	select {
	case _, ok := <-s.Events():
		if ok {
			t.Error("unexpected event after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Close")
	}
}

func TestStreamServerDropEndsStream(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	s, err := Dial(context.Background(), wsURL(srv), "token-1", zap.NewNop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	select {
	case _, ok := <-s.Events():
		if ok {
			t.Error("unexpected event from dropped stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after server drop")
	}

	// done must already be signalled by the read loop, not only by Close.
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("done not signalled after the read loop exited")
	}
}
