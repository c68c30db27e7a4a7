package realtime

import (
	"log/slog"
	"sync"

	"github.com/proctorhub/session-service/internal/models"
)

// Notification message types emitted by the registry itself.
const (
	MsgParticipantJoined = "participant-joined"
	MsgParticipantLeft   = "participant-left"
	MsgRoleSuperseded    = "role-superseded"
)

// RoomSnapshot reports which roles currently hold an active connection.
type RoomSnapshot struct {
	CandidatePresent   bool `json:"candidate_present"`
	InterviewerPresent bool `json:"interviewer_present"`
}

// JoinResult is returned from Join with the state of the room as seen by the
// newly joined connection.
type JoinResult struct {
	Snapshot RoomSnapshot
	// Replaced holds the prior same-role connection when the join superseded
	// one. It has already received a role-superseded notification and been
	// evicted from the room.
	Replaced Connection
}

type membership struct {
	sessionID string
	role      models.ParticipantRole
}

// Registry is the authoritative in-memory mapping from a session to its live
// connections. State is process-local and lost on restart; clients re-join
// on reconnect. A registry is constructed once per process and passed
// explicitly, never held as package state.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[models.ParticipantRole]Connection
	byConn map[Connection]membership
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]map[models.ParticipantRole]Connection),
		byConn: make(map[Connection]membership),
		logger: logger,
	}
}

// Join registers conn under (sessionID, role). A connection already holding
// that role is superseded: it is notified and evicted, and the new
// connection takes the role. The other role in the room is told about the
// arrival, never the joiner itself.
func (r *Registry) Join(sessionID string, role models.ParticipantRole, conn Connection) JoinResult {
	r.mu.Lock()

	room, ok := r.rooms[sessionID]
	if !ok {
		room = make(map[models.ParticipantRole]Connection, 2)
		r.rooms[sessionID] = room
	}

	replaced := room[role]
	if replaced == conn {
		replaced = nil
	}
	if replaced != nil {
		delete(r.byConn, replaced)
	}
	room[role] = conn
	r.byConn[conn] = membership{sessionID: sessionID, role: role}

	var peer Connection
	if other, ok := room[role.Other()]; ok {
		peer = other
	}
	snapshot := snapshotLocked(room)

	r.mu.Unlock()

	if replaced != nil {
		r.send(replaced, Envelope{Type: MsgRoleSuperseded, Payload: map[string]interface{}{
			"session_id": sessionID,
			"role":       role,
		}})
		replaced.Close()
		r.logger.Info("Connection superseded",
			"session_id", sessionID,
			"role", role)
	}

	if peer != nil {
		r.send(peer, Envelope{Type: MsgParticipantJoined, Payload: map[string]interface{}{
			"session_id": sessionID,
			"role":       role,
		}})
	}

	r.logger.Info("Participant joined room",
		"session_id", sessionID,
		"role", role)

	return JoinResult{Snapshot: snapshot, Replaced: replaced}
}

// Leave removes conn from whatever room and role it holds. Calling it for an
// unregistered connection is a no-op, so disconnect paths can call it
// unconditionally.
func (r *Registry) Leave(conn Connection) {
	r.mu.Lock()

	m, ok := r.byConn[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byConn, conn)

	room := r.rooms[m.sessionID]
	if room[m.role] == conn {
		delete(room, m.role)
	}
	var peer Connection
	if other, ok := room[m.role.Other()]; ok {
		peer = other
	}
	if len(room) == 0 {
		delete(r.rooms, m.sessionID)
	}

	r.mu.Unlock()

	if peer != nil {
		r.send(peer, Envelope{Type: MsgParticipantLeft, Payload: map[string]interface{}{
			"session_id": m.sessionID,
			"role":       m.role,
		}})
	}

	r.logger.Info("Participant left room",
		"session_id", m.sessionID,
		"role", m.role)
}

// PeersOf returns the connections in the room other than excluding.
func (r *Registry) PeersOf(sessionID string, excluding Connection) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[sessionID]
	if !ok {
		return nil
	}
	peers := make([]Connection, 0, len(room))
	for _, c := range room {
		if c != excluding {
			peers = append(peers, c)
		}
	}
	return peers
}

// RoleConnection returns the active connection for a role, if any.
func (r *Registry) RoleConnection(sessionID string, role models.ParticipantRole) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[sessionID]
	if !ok {
		return nil, false
	}
	conn, ok := room[role]
	return conn, ok
}

// Snapshot reports which roles are present in the room.
func (r *Registry) Snapshot(sessionID string) RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotLocked(r.rooms[sessionID])
}

// MembershipOf returns the room binding of a connection.
func (r *Registry) MembershipOf(conn Connection) (sessionID string, role models.ParticipantRole, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byConn[conn]
	return m.sessionID, m.role, ok
}

func (r *Registry) send(conn Connection, env Envelope) {
	if err := conn.Send(env); err != nil {
		// Best effort: a slow or dead peer loses the notification.
		r.logger.Warn("Failed to deliver registry notification",
			"message_type", env.Type,
			"error", err)
	}
}

func snapshotLocked(room map[models.ParticipantRole]Connection) RoomSnapshot {
	var snap RoomSnapshot
	if room == nil {
		return snap
	}
	_, snap.CandidatePresent = room[models.RoleCandidate]
	_, snap.InterviewerPresent = room[models.RoleInterviewer]
	return snap
}
