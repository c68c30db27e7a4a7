package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/proctorhub/session-service/internal/models"
)

// EventType represents the published event kinds. External consumers
// (report generation, dashboards) subscribe to these.
type EventType string

const (
	// Session lifecycle events
	EventSessionCreated EventType = "session.created"
	EventSessionStarted EventType = "session.started"
	EventSessionEnded   EventType = "session.ended"

	// Violation events
	EventViolationRecorded EventType = "violation.recorded"
	EventScoreUpdated      EventType = "score.updated"
)

const eventSource = "session-service"

// Event is the base structure for all published events.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func newEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   "1.0",
		Data:      data,
	}
}

// Session event payloads

type SessionCreatedEvent struct {
	SessionID      string `json:"session_id"`
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email,omitempty"`
}

type SessionStartedEvent struct {
	SessionID string     `json:"session_id"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type SessionEndedEvent struct {
	SessionID            string               `json:"session_id"`
	Status               models.SessionStatus `json:"status"`
	EndedAt              *time.Time           `json:"ended_at,omitempty"`
	ViolationCount       int                  `json:"violation_count"`
	FocusLostCount       int                  `json:"focus_lost_count"`
	ObjectViolationCount int                  `json:"object_violation_count"`
	IntegrityScore       int                  `json:"integrity_score"`
}

// Violation event payloads

type ViolationRecordedEvent struct {
	ViolationID    uint                     `json:"violation_id"`
	SessionID      string                   `json:"session_id"`
	Type           models.ViolationType     `json:"type"`
	Severity       models.ViolationSeverity `json:"severity"`
	Confidence     float64                  `json:"confidence"`
	Source         models.ViolationSource   `json:"source"`
	Timestamp      time.Time                `json:"timestamp"`
	CountedInScore bool                     `json:"counted_in_score"`
	IntegrityScore int                      `json:"integrity_score"`
}

type ScoreUpdatedEvent struct {
	SessionID        string `json:"session_id"`
	IntegrityScore   int    `json:"integrity_score"`
	TotalViolations  int    `json:"total_violations"`
	FocusViolations  int    `json:"focus_violations"`
	ObjectViolations int    `json:"object_violations"`
}

// Constructors

func NewSessionCreatedEvent(session *models.Session) *Event {
	return newEvent(EventSessionCreated, SessionCreatedEvent{
		SessionID:      session.SessionID,
		CandidateName:  session.CandidateName,
		CandidateEmail: session.CandidateEmail,
	})
}

func NewSessionStartedEvent(session *models.Session) *Event {
	return newEvent(EventSessionStarted, SessionStartedEvent{
		SessionID: session.SessionID,
		StartedAt: session.StartTime,
	})
}

func NewSessionEndedEvent(session *models.Session) *Event {
	return newEvent(EventSessionEnded, SessionEndedEvent{
		SessionID:            session.SessionID,
		Status:               session.Status,
		EndedAt:              session.EndTime,
		ViolationCount:       session.ViolationCount,
		FocusLostCount:       session.FocusLostCount,
		ObjectViolationCount: session.ObjectViolationCount,
		IntegrityScore:       session.IntegrityScore,
	})
}

func NewViolationRecordedEvent(violation *models.Violation, integrityScore int) *Event {
	return newEvent(EventViolationRecorded, ViolationRecordedEvent{
		ViolationID:    violation.ID,
		SessionID:      violation.SessionID,
		Type:           violation.Type,
		Severity:       violation.Severity,
		Confidence:     violation.Confidence,
		Source:         violation.Source,
		Timestamp:      violation.Timestamp,
		CountedInScore: violation.CountedInScore,
		IntegrityScore: integrityScore,
	})
}

func NewScoreUpdatedEvent(sessionID string, score, total, focus, object int) *Event {
	return newEvent(EventScoreUpdated, ScoreUpdatedEvent{
		SessionID:        sessionID,
		IntegrityScore:   score,
		TotalViolations:  total,
		FocusViolations:  focus,
		ObjectViolations: object,
	})
}
