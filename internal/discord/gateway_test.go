package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

type recordedEvents struct {
	mu           sync.Mutex
	interactions []*Interaction
	threads      []*Channel
	messages     []*Message
}

func (r *recordedEvents) HandleInteraction(_ context.Context, interaction *Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interactions = append(r.interactions, interaction)
}

func (r *recordedEvents) HandleThreadCreate(_ context.Context, thread *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = append(r.threads, thread)
}

func (r *recordedEvents) HandleMessageCreate(_ context.Context, message *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func writeGatewayJSON(ctx context.Context, t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Errorf("server write failed: %v", err)
	}
}

func readGatewayPayload(ctx context.Context, t *testing.T, conn *websocket.Conn) gatewayPayload {
	t.Helper()
	var payload gatewayPayload
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("server read failed: %v", err)
		return payload
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Errorf("server decode failed: %v", err)
	}
	return payload
}

func TestGatewaySessionIdentifiesAndDispatches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	identified := make(chan gatewayPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		writeGatewayJSON(ctx, t, conn, `{"op":10,"d":{"heartbeat_interval":60000}}`)
		identified <- readGatewayPayload(ctx, t, conn)

		writeGatewayJSON(ctx, t, conn, `{"op":0,"s":1,"t":"READY","d":{}}`)
		writeGatewayJSON(ctx, t, conn, `{"op":0,"s":2,"t":"INTERACTION_CREATE","d":{"id":"int-1","type":2,"token":"tok-1","channel_id":"chan-1","data":{"name":"setup-button"}}}`)
		writeGatewayJSON(ctx, t, conn, `{"op":0,"s":3,"t":"THREAD_CREATE","d":{"id":"thread-1","type":11,"name":"#1_Launch","parent_id":"chan-1"}}`)
		writeGatewayJSON(ctx, t, conn, `{"op":0,"s":4,"t":"MESSAGE_CREATE","d":{"id":"msg-1","channel_id":"thread-1","content":"hi","author":{"id":"u1"}}}`)
		writeGatewayJSON(ctx, t, conn, `{"op":7}`)
	}))
	defer server.Close()

	handler := &recordedEvents{}
	gateway := NewGateway(GatewayOptions{
		URL:      server.URL,
		BotToken: "token-1",
		Handler:  handler,
	})

	err := gateway.runSession(ctx)
	if err == nil {
		t.Fatal("expected the session to end on the reconnect request")
	}

	identify := <-identified
	if identify.Op != opIdentify {
		t.Fatalf("expected identify op, got %d", identify.Op)
	}
	var identifyData struct {
		Token   string `json:"token"`
		Intents int    `json:"intents"`
	}
	if err := json.Unmarshal(identify.Data, &identifyData); err != nil {
		t.Fatalf("identify decode failed: %v", err)
	}
	if identifyData.Token != "token-1" {
		t.Fatalf("unexpected identify token: %s", identifyData.Token)
	}
	wantIntents := intentGuilds | intentGuildMessages | intentMessageContent
	if identifyData.Intents != wantIntents {
		t.Fatalf("expected intents %d, got %d", wantIntents, identifyData.Intents)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.interactions) != 1 || handler.interactions[0].ID != "int-1" {
		t.Fatalf("unexpected interactions: %+v", handler.interactions)
	}
	if len(handler.threads) != 1 || handler.threads[0].Name != "#1_Launch" {
		t.Fatalf("unexpected threads: %+v", handler.threads)
	}
	if len(handler.messages) != 1 || handler.messages[0].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", handler.messages)
	}
	if got := gateway.lastSeq.Load(); got != 4 {
		t.Fatalf("expected last sequence 4, got %d", got)
	}
}

func TestGatewayAnswersHeartbeatRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	heartbeats := make(chan gatewayPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		writeGatewayJSON(ctx, t, conn, `{"op":10,"d":{"heartbeat_interval":60000}}`)
		readGatewayPayload(ctx, t, conn) // identify
		writeGatewayJSON(ctx, t, conn, `{"op":0,"s":5,"t":"READY","d":{}}`)
		writeGatewayJSON(ctx, t, conn, `{"op":1}`)
		heartbeats <- readGatewayPayload(ctx, t, conn)
		writeGatewayJSON(ctx, t, conn, `{"op":9}`)
	}))
	defer server.Close()

	gateway := NewGateway(GatewayOptions{
		URL:      server.URL,
		BotToken: "token-1",
		Handler:  &recordedEvents{},
	})
	if err := gateway.runSession(ctx); err == nil {
		t.Fatal("expected the session to end on invalidation")
	}

	heartbeat := <-heartbeats
	if heartbeat.Op != opHeartbeat {
		t.Fatalf("expected heartbeat op, got %d", heartbeat.Op)
	}
	var seq int64
	if err := json.Unmarshal(heartbeat.Data, &seq); err != nil || seq != 5 {
		t.Fatalf("expected heartbeat to echo sequence 5, got %s", string(heartbeat.Data))
	}
}

func TestGatewayRunReconnectsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var connections atomic.Int64
	secondSession := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Connections may be torn down mid-write once the test cancels, so
		// server-side errors are ignored here.
		n := connections.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		serverCtx := context.Background()
		_ = conn.Write(serverCtx, websocket.MessageText, []byte(`{"op":10,"d":{"heartbeat_interval":60000}}`))
		_, _, _ = conn.Read(serverCtx) // identify
		if n == 2 {
			close(secondSession)
		}
		_ = conn.Write(serverCtx, websocket.MessageText, []byte(`{"op":7}`))
	}))
	defer server.Close()

	gateway := NewGateway(GatewayOptions{
		URL:      server.URL,
		BotToken: "token-1",
		Handler:  &recordedEvents{},
	})
	done := make(chan error, 1)
	go func() { done <- gateway.Run(ctx) }()

	select {
	case <-secondSession:
	case <-time.After(10 * time.Second):
		t.Fatal("gateway never reconnected")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestGatewayRequiresBotToken(t *testing.T) {
	gateway := NewGateway(GatewayOptions{})
	if err := gateway.Run(context.Background()); err == nil {
		t.Fatal("expected an error without a bot token")
	}
}
