package realtime

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/proctorhub/session-service/internal/models"
)

// Relayable message types. Anything else is refused at the controller
// boundary, the relay itself stays payload-agnostic.
const (
	MsgOffer           = "offer"
	MsgAnswer          = "answer"
	MsgICECandidate    = "ice-candidate"
	MsgChatMessage     = "chat-message"
	MsgFocusStatus     = "focus-status"
	MsgObjectDetection = "object-detection"
	MsgCandidateReady  = "candidate-ready"
	MsgEndSession      = "end-session"

	MsgRealtimeViolation = "real-time-violation"
	MsgScoreUpdated      = "score-updated"
)

var ErrInvalidSessionID = errors.New("missing or malformed session id")

// IsRelayable reports whether a message type may be forwarded between peers.
func IsRelayable(messageType string) bool {
	switch messageType {
	case MsgOffer, MsgAnswer, MsgICECandidate, MsgChatMessage,
		MsgFocusStatus, MsgObjectDetection, MsgCandidateReady, MsgEndSession:
		return true
	}
	return false
}

// Relay forwards opaque payloads between the two roles of a room. Delivery
// is best-effort and at-most-once: no queuing, no retry. WebRTC signaling is
// retried by the caller and chat/status messages are not mission-critical.
type Relay struct {
	registry *Registry
	logger   *slog.Logger
}

func NewRelay(registry *Registry, logger *slog.Logger) *Relay {
	return &Relay{registry: registry, logger: logger}
}

// Relay delivers payload, tagged with messageType, to every peer of sender
// in the room. An empty room is a normal no-op; only a missing session id is
// an error.
func (r *Relay) Relay(sessionID string, sender Connection, messageType string, payload interface{}) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSessionID
	}

	peers := r.registry.PeersOf(sessionID, sender)
	if len(peers) == 0 {
		return nil
	}

	env := Envelope{Type: messageType, Payload: payload}
	for _, peer := range peers {
		if err := peer.Send(env); err != nil {
			// Dropped, not fatal: a severed connection would hurt more than
			// a lost status ping.
			r.logger.Warn("Relay delivery dropped",
				"session_id", sessionID,
				"message_type", messageType,
				"error", err)
		}
	}
	return nil
}

// NotifyInterviewer delivers a server-originated notification to the
// interviewer side of the room, if connected. Implements the violation
// pipeline's RoomNotifier.
func (r *Relay) NotifyInterviewer(sessionID string, messageType string, payload interface{}) {
	conn, ok := r.registry.RoleConnection(sessionID, models.RoleInterviewer)
	if !ok {
		return
	}
	if err := conn.Send(Envelope{Type: messageType, Payload: payload}); err != nil {
		r.logger.Warn("Interviewer notification dropped",
			"session_id", sessionID,
			"message_type", messageType,
			"error", err)
	}
}
