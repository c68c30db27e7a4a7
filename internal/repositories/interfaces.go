package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/proctorhub/session-service/internal/models"
	"gorm.io/gorm"
)

// Repository aggregates the per-entity repositories and provides
// transactional execution.
type Repository interface {
	Session() SessionRepository
	Violation() ViolationRepository

	// Transaction runs fn against a repository bound to a single database
	// transaction. The transaction is rolled back if fn returns an error.
	Transaction(ctx context.Context, fn func(Repository) error) error
}

// IsNotFoundError reports whether err is a record-not-found error from the
// underlying store.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ===== SHARED FILTER STRUCTS =====

type SessionFilters struct {
	Status    *models.SessionStatus `json:"status"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "start_time", "integrity_score"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type ViolationFilters struct {
	Type     *models.ViolationType     `json:"type"`
	Severity *models.ViolationSeverity `json:"severity"`
	Source   *models.ViolationSource   `json:"source"`
	Resolved *bool                     `json:"resolved"`
	DateFrom *time.Time                `json:"date_from"`
	DateTo   *time.Time                `json:"date_to"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

// ViolationCounts holds the derived counters recomputed from the full
// violation set of a session. Only violations flagged CountedInScore are
// included.
type ViolationCounts struct {
	Total  int `json:"total"`
	Focus  int `json:"focus"`
	Object int `json:"object"`
}

// ViolationTypeSummary is one row of the per-session aggregate summary.
type ViolationTypeSummary struct {
	Type          models.ViolationType `json:"type"`
	Count         int                  `json:"count"`
	AvgConfidence float64              `json:"avg_confidence"`
	TotalDuration float64              `json:"total_duration"`
}
