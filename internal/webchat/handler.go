package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wolfman30/medibook/internal/conversation"
	"github.com/wolfman30/medibook/pkg/logging"
)

const (
	closeReasonFull = "Too many active connections"
	closeReasonDone = "booking complete"

	defaultPingInterval = 30 * time.Second
	defaultTurnTimeout  = 60 * time.Second
)

// TurnEngine advances a session by one input.
type TurnEngine interface {
	Step(ctx context.Context, s conversation.Session, input string) (conversation.Session, string)
}

// Transcript records each side of the conversation.
type Transcript interface {
	Append(ctx context.Context, sessionID string, entry conversation.TranscriptEntry) error
}

type Config struct {
	PingInterval   time.Duration
	TurnTimeout    time.Duration
	AllowedOrigins []string
}

// Handler upgrades /ws requests and runs one booking conversation per
// connection.
type Handler struct {
	engine     TurnEngine
	registry   *Registry
	transcript Transcript
	upgrader   websocket.Upgrader
	ping       time.Duration
	turn       time.Duration
	logger     *logging.Logger
}

// NewHandler builds the handler. transcript may be nil.
func NewHandler(engine TurnEngine, registry *Registry, transcript Transcript, cfg Config, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	return &Handler{
		engine:     engine,
		registry:   registry,
		transcript: transcript,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		ping:   cfg.PingInterval,
		turn:   cfg.TurnTimeout,
		logger: logger.Component("webchat"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	client := NewClient(conn)
	if err := h.registry.Register(client); err != nil {
		_ = client.Close(websocket.ClosePolicyViolation, closeReasonFull)
		return
	}
	defer func() {
		h.registry.Remove(client.ID)
		_ = client.Close(websocket.CloseNormalClosure, "")
	}()

	h.logger.Info("chat session opened", "session_id", client.ID, "remote", r.RemoteAddr)
	h.serve(r.Context(), client, conn)
}

// serve runs the turn loop. Turns are handled one at a time; the next frame
// is only read once the previous reply has been written.
func (h *Handler) serve(ctx context.Context, client *Client, conn *websocket.Conn) {
	session := conversation.NewSession(client.ID)
	if err := h.reply(ctx, client, session, conversation.Greeting); err != nil {
		return
	}

	pongWait := 2 * h.ping
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	defer close(done)
	go h.pinger(client, done)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Info("chat session dropped", "session_id", client.ID, "state", session.State, "error", err)
			} else {
				h.logger.Debug("chat session closed", "session_id", client.ID, "state", session.State)
			}
			return
		}

		in, err := parseInbound(data)
		switch {
		case err != nil:
			_ = client.Send(Frame{Type: FrameError, Text: err.Error(), State: string(session.State), SessionID: client.ID})
			continue
		case in.kind == inboundPing:
			_ = client.Send(Frame{Type: FramePong})
			continue
		case in.kind == inboundPong:
			continue
		}

		h.record(ctx, client.ID, conversation.RoleUser, in.text, session.State)
		turnCtx, cancel := context.WithTimeout(ctx, h.turn)
		next, reply := h.engine.Step(turnCtx, session, in.text)
		cancel()
		session = next

		if err := h.reply(ctx, client, session, reply); err != nil {
			return
		}
		if session.State.Terminal() {
			h.logger.Info("chat session completed", "session_id", client.ID)
			_ = client.Close(websocket.CloseNormalClosure, closeReasonDone)
			return
		}
	}
}

func (h *Handler) reply(ctx context.Context, client *Client, session conversation.Session, text string) error {
	err := client.Send(Frame{Type: FrameMessage, Text: text, State: string(session.State), SessionID: client.ID})
	if err != nil {
		h.logger.Debug("reply not delivered", "session_id", client.ID, "error", err)
		return err
	}
	h.record(ctx, client.ID, conversation.RoleAssistant, text, session.State)
	return nil
}

func (h *Handler) record(ctx context.Context, sessionID, role, text string, state conversation.State) {
	if h.transcript == nil {
		return
	}
	err := h.transcript.Append(ctx, sessionID, conversation.TranscriptEntry{Role: role, Text: text, State: state})
	if err != nil {
		h.logger.Warn("transcript append failed", "session_id", sessionID, "error", err)
	}
}

// pinger sends ping control frames until done is closed or a write fails.
func (h *Handler) pinger(client *Client, done <-chan struct{}) {
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				h.logger.Debug("ping failed", "session_id", client.ID, "error", err)
				return
			}
		}
	}
}

type inboundKind int

const (
	inboundText inboundKind = iota
	inboundPing
	inboundPong
)

type inbound struct {
	kind inboundKind
	text string
}

var errMissingText = errors.New("message must include a text field")

// parseInbound accepts {"text": ...}, {"type": "ping"} or plain text.
// A bare "pong" is a keepalive reply and carries no turn.
func parseInbound(data []byte) (inbound, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg struct {
			Type string  `json:"type"`
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(trimmed, &msg); err == nil {
			switch {
			case strings.EqualFold(msg.Type, "ping"):
				return inbound{kind: inboundPing}, nil
			case strings.EqualFold(msg.Type, "pong"):
				return inbound{kind: inboundPong}, nil
			case msg.Text == nil:
				return inbound{}, errMissingText
			}
			return inbound{kind: inboundText, text: *msg.Text}, nil
		}
	}
	text := string(data)
	if strings.EqualFold(strings.TrimSpace(text), "pong") {
		return inbound{kind: inboundPong}, nil
	}
	return inbound{kind: inboundText, text: text}, nil
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
