package prodflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestLineNotifierPush(t *testing.T) {
	var captured []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/push" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer line-token" {
			t.Errorf("unexpected authorization: %q", got)
		}
		captured, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	notifier := NewHTTPLineNotifier(LineNotifierOptions{
		BaseURL:       server.URL,
		TokenProvider: staticToken("line-token"),
	})
	if err := notifier.Push(context.Background(), "grp_1", "gaming #3: video delivered"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		To       string `json:"to"`
		Messages []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(captured, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.To != "grp_1" || len(body.Messages) != 1 || body.Messages[0].Text != "gaming #3: video delivered" {
		t.Fatalf("unexpected payload: %s", captured)
	}
}

func TestLineNotifierRetriesOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	notifier := NewHTTPLineNotifier(LineNotifierOptions{
		BaseURL:       server.URL,
		TokenProvider: staticToken("line-token"),
		BaseDelay:     time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
	})
	if err := notifier.Push(context.Background(), "grp_1", "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a retry, got %d calls", calls.Load())
	}
}

func TestLineNotifierRejectsEmptyDestination(t *testing.T) {
	notifier := NewHTTPLineNotifier(LineNotifierOptions{TokenProvider: staticToken("tok")})
	if err := notifier.Push(context.Background(), "  ", "text"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNoopNotifier(t *testing.T) {
	if err := (NoopNotifier{}).Push(context.Background(), "anywhere", "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
