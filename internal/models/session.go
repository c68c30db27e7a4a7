package models

import (
	"time"

	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
)

// IsTerminal reports whether the status is final. Counters and score are
// frozen once a session reaches a terminal status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionTerminated
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionInProgress, SessionCompleted, SessionTerminated:
		return true
	}
	return false
}

type Session struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID string `json:"session_id" gorm:"not null;uniqueIndex;size:64" validate:"required"`

	CandidateName   string `json:"candidate_name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	CandidateEmail  string `json:"candidate_email" gorm:"size:254" validate:"omitempty,email"`
	InterviewerName string `json:"interviewer_name" gorm:"size:200" validate:"omitempty,max=200"`

	Status    SessionStatus `json:"status" gorm:"default:scheduled;index" validate:"omitempty,oneof=scheduled in_progress completed terminated"`
	StartTime *time.Time    `json:"start_time"`
	EndTime   *time.Time    `json:"end_time"`

	// Derived counters, always recomputed from the violation set. Never
	// incremented in place.
	ViolationCount       int `json:"violation_count" gorm:"default:0"`
	FocusLostCount       int `json:"focus_lost_count" gorm:"default:0"`
	ObjectViolationCount int `json:"object_violation_count" gorm:"default:0"`

	IntegrityScore int `json:"integrity_score" gorm:"default:100" validate:"omitempty,min=0,max=100"`

	VideoRecordingPath *string `json:"video_recording_path" gorm:"type:text"`
	ReportPath         *string `json:"report_path" gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Violations []Violation `json:"violations,omitempty" gorm:"foreignKey:SessionID;references:SessionID"`
}

func (Session) TableName() string {
	return "sessions"
}
