package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inbound is the envelope read off the socket. Payload stays raw until the
// handler for the message type decides what to do with it.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

// client is the per-connection state: the session binding established at
// join-room time. Handlers receive it explicitly instead of closing over
// socket-scoped variables.
type client struct {
	conn      *WSConnection
	sessionID string
	role      models.ParticipantRole
	joined    bool
}

type messageHandler func(ctx context.Context, cl *client, payload json.RawMessage)

// Controller terminates websocket connections and dispatches inbound
// messages through an explicit message-type table.
type Controller struct {
	registry *Registry
	relay    *Relay
	sessions services.SessionService
	logger   *slog.Logger

	handlers map[string]messageHandler
}

func NewController(
	registry *Registry,
	relay *Relay,
	sessions services.SessionService,
	logger *slog.Logger,
) *Controller {
	ctl := &Controller{
		registry: registry,
		relay:    relay,
		sessions: sessions,
		logger:   logger,
	}

	ctl.handlers = map[string]messageHandler{
		"join-room":        ctl.handleJoin,
		MsgOffer:           ctl.handleRelay(MsgOffer),
		MsgAnswer:          ctl.handleRelay(MsgAnswer),
		MsgICECandidate:    ctl.handleRelay(MsgICECandidate),
		MsgChatMessage:     ctl.handleRelay(MsgChatMessage),
		MsgFocusStatus:     ctl.handleRelay(MsgFocusStatus),
		MsgObjectDetection: ctl.handleRelay(MsgObjectDetection),
		MsgCandidateReady:  ctl.handleRelay(MsgCandidateReady),
		MsgEndSession:      ctl.handleEndSession,
	}

	return ctl
}

// HandleWS upgrades the request and runs the read loop until the peer goes
// away.
func (ctl *Controller) HandleWS(c *gin.Context) {
	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctl.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	conn := NewWSConnection(wsConn)
	conn.StartWriteLoop()

	cl := &client{conn: conn}
	defer func() {
		ctl.registry.Leave(conn)
		conn.Close()
	}()

	ctx := c.Request.Context()
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			ctl.sendError(cl, "bad_envelope", "message must be a {type, payload} object")
			continue
		}

		handler, ok := ctl.handlers[msg.Type]
		if !ok {
			ctl.sendError(cl, "unknown_type", "unsupported message type: "+msg.Type)
			continue
		}

		// Everything but join-room requires an established session binding.
		if msg.Type != "join-room" && !cl.joined {
			ctl.sendError(cl, "not_joined", "join-room must be sent first")
			continue
		}

		handler(ctx, cl, msg.Payload)
	}
}

func (ctl *Controller) handleJoin(ctx context.Context, cl *client, payload json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		ctl.sendError(cl, "bad_payload", "invalid join-room payload")
		return
	}
	role := models.ParticipantRole(p.Role)
	if p.SessionID == "" || !role.Valid() {
		ctl.sendError(cl, "bad_payload", "join-room requires session_id and a valid role")
		return
	}

	if _, err := ctl.sessions.Get(ctx, p.SessionID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			ctl.sendError(cl, "session_not_found", "no session with id "+p.SessionID)
			return
		}
		ctl.logger.Error("Join failed resolving session", "session_id", p.SessionID, "error", err)
		ctl.sendError(cl, "internal_error", "could not resolve session")
		return
	}

	// Re-joining under a new binding first releases the old one.
	if cl.joined {
		ctl.registry.Leave(cl.conn)
	}

	result := ctl.registry.Join(p.SessionID, role, cl.conn)
	cl.sessionID = p.SessionID
	cl.role = role
	cl.joined = true

	// First participant join moves the session to in_progress.
	if _, err := ctl.sessions.Start(ctx, p.SessionID); err != nil && !errors.Is(err, services.ErrSessionAlreadyEnded) {
		ctl.logger.Warn("Could not start session on join",
			"session_id", p.SessionID,
			"error", err)
	}

	ctl.send(cl, Envelope{Type: "room-state", Payload: map[string]interface{}{
		"session_id": p.SessionID,
		"role":       role,
		"snapshot":   result.Snapshot,
	}})
}

func (ctl *Controller) handleRelay(messageType string) messageHandler {
	return func(ctx context.Context, cl *client, payload json.RawMessage) {
		if err := ctl.relay.Relay(cl.sessionID, cl.conn, messageType, payload); err != nil {
			ctl.sendError(cl, "relay_failed", err.Error())
		}
	}
}

// handleEndSession relays the signal to the peer and completes the session.
// Ending an already-ended session only reports the relay, the lifecycle
// transition is idempotent at the caller's level.
func (ctl *Controller) handleEndSession(ctx context.Context, cl *client, payload json.RawMessage) {
	if err := ctl.relay.Relay(cl.sessionID, cl.conn, MsgEndSession, payload); err != nil {
		ctl.sendError(cl, "relay_failed", err.Error())
		return
	}

	session, err := ctl.sessions.End(ctx, cl.sessionID)
	if err != nil {
		if errors.Is(err, services.ErrSessionAlreadyEnded) {
			return
		}
		ctl.logger.Error("End session failed", "session_id", cl.sessionID, "error", err)
		ctl.sendError(cl, "end_failed", "could not end session")
		return
	}

	ctl.send(cl, Envelope{Type: "session-ended", Payload: map[string]interface{}{
		"session_id":      session.SessionID,
		"status":          session.Status,
		"integrity_score": session.IntegrityScore,
	}})
}

func (ctl *Controller) send(cl *client, env Envelope) {
	if err := cl.conn.Send(env); err != nil {
		ctl.logger.Warn("Failed to send to client",
			"message_type", env.Type,
			"error", err)
	}
}

func (ctl *Controller) sendError(cl *client, code, message string) {
	ctl.send(cl, Envelope{Type: "error", Payload: map[string]string{
		"code":  code,
		"error": message,
	}})
}
