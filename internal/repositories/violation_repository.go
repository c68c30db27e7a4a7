package repositories

import (
	"context"
	"time"

	"github.com/proctorhub/session-service/internal/models"
)

// ViolationRepository interface for violation record operations
type ViolationRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, violation *models.Violation) error
	CreateBatch(ctx context.Context, violations []*models.Violation) error
	GetByID(ctx context.Context, id uint) (*models.Violation, error)

	// Query operations
	GetBySession(ctx context.Context, sessionID string, filters ViolationFilters) ([]*models.Violation, int64, error)

	// Derived counters, recomputed from the full violation set of a session.
	// Violations excluded from scoring (post-termination audit records) are
	// not counted.
	CountsBySession(ctx context.Context, sessionID string) (*ViolationCounts, error)

	// Aggregate summary grouped by violation type.
	SummaryBySession(ctx context.Context, sessionID string) ([]*ViolationTypeSummary, error)

	// Review, the only permitted mutation of a persisted violation.
	MarkResolved(ctx context.Context, id uint, reviewedBy string, notes *string, reviewedAt time.Time) error
}
