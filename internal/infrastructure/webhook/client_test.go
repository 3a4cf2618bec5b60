package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hunt-server/internal/domain"
	"hunt-server/pkg/api"
)

func TestClient_Notify(t *testing.T) {
	received := make(chan api.WebhookEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request: %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var ev api.WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- ev
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, time.Second)
	defer c.Close()

	err := c.Notify(context.Background(), api.EventGameStarted, map[string]string{
		"attemptNumber": "1",
		"worldSeed":     "1000",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	ev := <-received
	if ev.Event != "game-started" || ev.Data["worldSeed"] != "1000" {
		t.Errorf("unexpected payload: %+v", ev)
	}
}

func TestClient_NotifyFailures(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer rejecting.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	tests := []struct {
		name    string
		url     string
		timeout time.Duration
	}{
		{"non-2xx status", rejecting.URL, time.Second},
		{"request timeout", slow.URL, 50 * time.Millisecond},
		{"unreachable", "http://127.0.0.1:1/webhook", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.url, 200*time.Millisecond, tt.timeout)
			err := c.Notify(context.Background(), api.EventHunterLeft, nil)
			if !errors.Is(err, domain.ErrNotification) {
				t.Errorf("Notify() error = %v, want ErrNotification", err)
			}
		})
	}
}
