package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatform/backend/internal/model/form"
	"github.com/chatform/backend/internal/service/gateway"
	"github.com/chatform/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler upgrades clients to WebSocket and dispatches their session
// events. Each connection is served by a single read loop, so events from
// one client are processed to completion in arrival order.
type Handler struct {
	store    *session.Store
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler.
func New(store *session.Store) *Handler {
	return &Handler{
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outgoingEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type createSessionPayload struct {
	Schema form.Schema `json:"schema"`
}

type sendMessagePayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type endSessionPayload struct {
	SessionID string `json:"sessionId"`
}

// client wraps one connection. The write mutex keeps the ping loop from
// interleaving with event writes.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(event outgoingEvent) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(event); err != nil {
		log.Printf("[ws] write failed: %v", err)
	}
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// HandleWS upgrades the request and runs the event loop until the client
// disconnects. Sessions outlive the connection that created them.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] client connected: %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	c := &client{conn: conn}
	go h.pingLoop(ctx, c)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var event inboundEvent
			if err := conn.ReadJSON(&event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[ws] read error: %v", err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readTimeout))
			h.handleEvent(ctx, c, &event)
		}
	}
}

func (h *Handler) handleEvent(ctx context.Context, c *client, event *inboundEvent) {
	switch event.Type {
	case "create-session":
		h.handleCreateSession(ctx, c, event.Payload)
	case "send-message":
		h.handleSendMessage(ctx, c, event.Payload)
	case "end-session":
		h.handleEndSession(c, event.Payload)
	default:
		h.sendError(c, "unsupported event type: "+event.Type)
	}
}

func (h *Handler) handleCreateSession(ctx context.Context, c *client, raw json.RawMessage) {
	var payload createSessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, "Invalid schema: expected an object mapping field names to types")
		return
	}

	created, err := h.store.Create(ctx, payload.Schema)
	if err != nil {
		h.sendError(c, userMessage(err))
		return
	}

	log.Printf("[ws] session created: %s (%d fields)", created.SessionID, len(payload.Schema))

	c.send(outgoingEvent{Type: "session-created", Payload: map[string]any{
		"sessionId":      created.SessionID,
		"initialMessage": created.Greeting,
		"formData":       map[string]string{},
	}})
}

func (h *Handler) handleSendMessage(ctx context.Context, c *client, raw json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, "Invalid message payload")
		return
	}

	c.send(outgoingEvent{Type: "typing", Payload: true})

	reply, err := h.store.SendMessage(ctx, payload.SessionID, payload.Message)

	c.send(outgoingEvent{Type: "typing", Payload: false})

	if err != nil {
		h.sendError(c, userMessage(err))
		return
	}

	formData := reply.FormData
	if formData == nil {
		formData = map[string]string{}
	}

	c.send(outgoingEvent{Type: "message-response", Payload: map[string]any{
		"response": reply.Response,
		"formData": formData,
	}})
}

func (h *Handler) handleEndSession(c *client, raw json.RawMessage) {
	var payload endSessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, "Invalid message payload")
		return
	}

	if !h.store.Delete(payload.SessionID) {
		h.sendError(c, "Session not found")
		return
	}

	log.Printf("[ws] session ended: %s", payload.SessionID)
	c.send(outgoingEvent{Type: "session-ended"})
}

func (h *Handler) sendError(c *client, message string) {
	c.send(outgoingEvent{Type: "error", Payload: map[string]string{"message": message}})
}

// userMessage converts internal errors into the guidance shown to end
// users. Internal detail never crosses the transport boundary.
func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidSchema):
		return "Invalid schema: provide at least one field with a supported type"
	case errors.Is(err, session.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, gateway.ErrQuotaExceeded):
		return "The AI service has hit its usage limit. Please try again in a moment."
	case errors.Is(err, gateway.ErrContentRejected):
		return "That message was blocked by the AI safety filter. Please rephrase and try again."
	default:
		log.Printf("[ws] turn failed: %v", err)
		return "Something went wrong processing your message. Please try again."
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
