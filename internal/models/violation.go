package models

import (
	"time"

	"gorm.io/datatypes"
)

type ViolationType string

const (
	ViolationNoFace           ViolationType = "no_face_detected"
	ViolationMultipleFaces    ViolationType = "multiple_faces"
	ViolationLookingAway      ViolationType = "looking_away"
	ViolationPhoneDetected    ViolationType = "phone_detected"
	ViolationBookDetected     ViolationType = "book_detected"
	ViolationDeviceDetected   ViolationType = "device_detected"
	ViolationUnauthorizedItem ViolationType = "unauthorized_item"
	ViolationEyeClosure       ViolationType = "eye_closure"
	ViolationAbsence          ViolationType = "absence"
	ViolationBackgroundVoice  ViolationType = "background_voice"
)

// FocusViolationTypes is the category set counted into FocusLostCount.
var FocusViolationTypes = map[ViolationType]bool{
	ViolationNoFace:        true,
	ViolationLookingAway:   true,
	ViolationEyeClosure:    true,
	ViolationAbsence:       true,
	ViolationMultipleFaces: true,
}

// ObjectViolationTypes is the category set counted into ObjectViolationCount.
var ObjectViolationTypes = map[ViolationType]bool{
	ViolationPhoneDetected:    true,
	ViolationBookDetected:     true,
	ViolationDeviceDetected:   true,
	ViolationUnauthorizedItem: true,
}

func (t ViolationType) Valid() bool {
	switch t {
	case ViolationNoFace, ViolationMultipleFaces, ViolationLookingAway,
		ViolationPhoneDetected, ViolationBookDetected, ViolationDeviceDetected,
		ViolationUnauthorizedItem, ViolationEyeClosure, ViolationAbsence,
		ViolationBackgroundVoice:
		return true
	}
	return false
}

type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "low"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

func (s ViolationSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type ViolationSource string

const (
	SourceCandidateDetection   ViolationSource = "candidate_detection"
	SourceInterviewerDetection ViolationSource = "interviewer_detection"
	SourceSystemDetection      ViolationSource = "system_detection"
	SourceManual               ViolationSource = "manual"
	SourceUnknown              ViolationSource = "unknown"
)

func (s ViolationSource) Valid() bool {
	switch s {
	case SourceCandidateDetection, SourceInterviewerDetection,
		SourceSystemDetection, SourceManual, SourceUnknown:
		return true
	}
	return false
}

type Violation struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID string `json:"session_id" gorm:"not null;index;size:64"`

	Type        ViolationType     `json:"type" gorm:"not null;index"`
	Description string            `json:"description" gorm:"not null;size:500"`
	Severity    ViolationSeverity `json:"severity" gorm:"default:medium"`
	Confidence  float64           `json:"confidence" gorm:"not null"`

	// Event time as reported by the client, not ingestion time.
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
	Duration  *float64  `json:"duration"`

	Source ViolationSource `json:"source" gorm:"default:unknown"`

	// Detector-specific context, stored opaquely. Malformed metadata strings
	// are preserved under a "raw" key instead of being rejected.
	Metadata datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`

	ScreenshotPath *string `json:"screenshot_path" gorm:"type:text"`

	// Violations that arrive after the session reached a terminal status are
	// kept for audit but excluded from the frozen score.
	CountedInScore bool `json:"counted_in_score" gorm:"default:true;index"`

	// Review status, the only mutable part of a persisted violation.
	Resolved    bool       `json:"resolved" gorm:"default:false"`
	ReviewedBy  *string    `json:"reviewed_by" gorm:"size:200"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewNotes *string    `json:"review_notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}

func (Violation) TableName() string {
	return "violations"
}
