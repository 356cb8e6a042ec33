package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Gateway intents requested at identify.
const (
	intentGuilds         = 1 << 0
	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15
)

const gatewayReadLimit = 1 << 22

// EventHandler receives dispatched gateway events. Handlers run on the read
// loop goroutine; long work must be moved off it by the implementation.
type EventHandler interface {
	HandleInteraction(ctx context.Context, interaction *Interaction)
	HandleThreadCreate(ctx context.Context, thread *Channel)
	HandleMessageCreate(ctx context.Context, message *Message)
}

type GatewayOptions struct {
	URL      string
	BotToken string
	Handler  EventHandler
	Logf     func(format string, v ...any)
}

// Gateway maintains the websocket session: hello, identify, heartbeats, and
// dispatch fan-out. Run reconnects with backoff until the context ends.
type Gateway struct {
	url      string
	botToken string
	handler  EventHandler
	logf     func(format string, v ...any)
	lastSeq  atomic.Int64
}

func NewGateway(opts GatewayOptions) *Gateway {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = "wss://gateway.discord.gg/?v=10&encoding=json"
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Gateway{
		url:      url,
		botToken: strings.TrimSpace(opts.BotToken),
		handler:  opts.Handler,
		logf:     logf,
	}
}

type gatewayPayload struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

func (g *Gateway) Run(ctx context.Context) error {
	if g.botToken == "" {
		return fmt.Errorf("discord gateway: bot token is required")
	}
	delay := time.Second
	for {
		err := g.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logf("gateway session ended: %v; reconnecting in %s", err, delay)
		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			return waitErr
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}

func (g *Gateway) runSession(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.Dial(sessionCtx, g.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(gatewayReadLimit)

	hello, err := g.readPayload(sessionCtx, conn)
	if err != nil {
		return err
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.Data, &helloData); err != nil {
		return err
	}
	if helloData.HeartbeatInterval <= 0 {
		return fmt.Errorf("hello carried no heartbeat interval")
	}

	if err := g.identify(sessionCtx, conn); err != nil {
		return err
	}

	heartbeatErr := make(chan error, 1)
	go func() {
		heartbeatErr <- g.heartbeatLoop(sessionCtx, conn, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)
	}()

	for {
		select {
		case err := <-heartbeatErr:
			return err
		default:
		}
		payload, err := g.readPayload(sessionCtx, conn)
		if err != nil {
			return err
		}
		if payload.Seq != nil {
			g.lastSeq.Store(*payload.Seq)
		}
		switch payload.Op {
		case opDispatch:
			g.dispatch(sessionCtx, payload)
		case opHeartbeat:
			if err := g.sendHeartbeat(sessionCtx, conn); err != nil {
				return err
			}
		case opReconnect:
			return fmt.Errorf("server requested reconnect")
		case opInvalidSession:
			return fmt.Errorf("session invalidated")
		case opHeartbeatACK:
		}
	}
}

func (g *Gateway) identify(ctx context.Context, conn *websocket.Conn) error {
	identify := struct {
		Token      string `json:"token"`
		Intents    int    `json:"intents"`
		Properties struct {
			OS      string `json:"os"`
			Browser string `json:"browser"`
			Device  string `json:"device"`
		} `json:"properties"`
	}{
		Token:   g.botToken,
		Intents: intentGuilds | intentGuildMessages | intentMessageContent,
	}
	identify.Properties.OS = "linux"
	identify.Properties.Browser = "prodflow"
	identify.Properties.Device = "prodflow"
	return g.writePayload(ctx, conn, gatewayPayload{Op: opIdentify}, identify)
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.sendHeartbeat(ctx, conn); err != nil {
				return err
			}
		}
	}
}

func (g *Gateway) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	seq := g.lastSeq.Load()
	var data any
	if seq > 0 {
		data = seq
	}
	return g.writePayload(ctx, conn, gatewayPayload{Op: opHeartbeat}, data)
}

func (g *Gateway) dispatch(ctx context.Context, payload gatewayPayload) {
	if g.handler == nil {
		return
	}
	switch payload.Type {
	case "READY":
		g.logf("gateway ready")
	case "INTERACTION_CREATE":
		var interaction Interaction
		if err := json.Unmarshal(payload.Data, &interaction); err != nil {
			g.logf("interaction decode failed: %v", err)
			return
		}
		g.handler.HandleInteraction(ctx, &interaction)
	case "THREAD_CREATE":
		var thread Channel
		if err := json.Unmarshal(payload.Data, &thread); err != nil {
			g.logf("thread decode failed: %v", err)
			return
		}
		g.handler.HandleThreadCreate(ctx, &thread)
	case "MESSAGE_CREATE":
		var message Message
		if err := json.Unmarshal(payload.Data, &message); err != nil {
			g.logf("message decode failed: %v", err)
			return
		}
		g.handler.HandleMessageCreate(ctx, &message)
	}
}

func (g *Gateway) readPayload(ctx context.Context, conn *websocket.Conn) (gatewayPayload, error) {
	var payload gatewayPayload
	_, data, err := conn.Read(ctx)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (g *Gateway) writePayload(ctx context.Context, conn *websocket.Conn, payload gatewayPayload, data any) error {
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload.Data = encoded
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, encoded)
}
