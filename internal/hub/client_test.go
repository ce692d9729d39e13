package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestFrameType(t *testing.T) {
	if got := frameType([]byte(`{"type":"alert"}`)); got != websocket.TextMessage {
		t.Fatalf("expected text frame, got %d", got)
	}
	if got := frameType([]byte{0xff, 0x00, 0xfe}); got != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got %d", got)
	}
}

func TestClientRelaysBinaryFrames(t *testing.T) {
	h := New(zerolog.Nop())
	defer h.Close()
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ServeClient(h, conn, zerolog.Nop())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sender, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial sender: %v", err)
	}
	defer sender.Close()
	receiver, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial receiver: %v", err)
	}
	defer receiver.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 subscribers, got %d", h.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := sender.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = receiver.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, got, err := receiver.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage || string(got) != string(payload) {
		t.Fatalf("expected binary %x, got kind %d payload %x", payload, kind, got)
	}
}
