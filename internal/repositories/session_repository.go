package repositories

import (
	"context"
	"time"

	"github.com/proctorhub/session-service/internal/models"
)

// SessionRepository interface for interview session operations
type SessionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, session *models.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	GetBySessionIDWithViolations(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, sessionID string) error // Soft delete

	// Query operations
	List(ctx context.Context, filters SessionFilters) ([]*models.Session, int64, error)
	GetByStatus(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.Session, error)

	// Status management
	UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
	SetStartTime(ctx context.Context, sessionID string, t time.Time) error
	SetEndTime(ctx context.Context, sessionID string, t time.Time) error

	// Derived state
	UpdateCountersAndScore(ctx context.Context, sessionID string, counts ViolationCounts, score int) error

	// Artifact references
	SetVideoRecordingPath(ctx context.Context, sessionID string, path string) error
	SetReportPath(ctx context.Context, sessionID string, path string) error
}
