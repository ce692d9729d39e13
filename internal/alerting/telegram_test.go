package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"svfe-monitor/internal/model"
)

func criticalEvent() model.AlertEvent {
	return model.AlertEvent{
		Rule:      "success_collapse",
		Severity:  model.SeverityCritical,
		Message:   "Alerte Critique: Le taux de reussite est tombe a 60.00%!",
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	var logs strings.Builder
	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.New(&logs))
	if err := notifier.Notify(context.Background(), criticalEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(logs.String(), `"message":"telegram alert sent"`) {
		t.Fatalf("unexpected log output %q", logs.String())
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "60.00%") || !strings.Contains(received["text"], "CRITICAL") {
		t.Fatalf("unexpected text %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	err := notifier.Notify(context.Background(), criticalEvent())
	if !errors.Is(err, model.ErrDeliveryFailure) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
}

func TestTelegramNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), criticalEvent()); err == nil {
		t.Fatal("expected error on 502")
	}
}
