package postgres

import (
	"context"
	"time"

	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/repositories"
	"gorm.io/gorm"
)

type ViolationPostgreSQL struct {
	db *gorm.DB
}

func NewViolationPostgreSQL(db *gorm.DB) repositories.ViolationRepository {
	return &ViolationPostgreSQL{db: db}
}

func (v ViolationPostgreSQL) Create(ctx context.Context, violation *models.Violation) error {
	return v.db.WithContext(ctx).Create(violation).Error
}

func (v ViolationPostgreSQL) CreateBatch(ctx context.Context, violations []*models.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return v.db.WithContext(ctx).CreateInBatches(violations, 100).Error
}

func (v ViolationPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Violation, error) {
	var violation models.Violation
	if err := v.db.WithContext(ctx).First(&violation, id).Error; err != nil {
		return nil, err
	}
	return &violation, nil
}

func (v ViolationPostgreSQL) GetBySession(ctx context.Context, sessionID string, filters repositories.ViolationFilters) ([]*models.Violation, int64, error) {
	var violations []*models.Violation
	var total int64

	query := v.db.WithContext(ctx).
		Model(&models.Violation{}).
		Where("session_id = ?", sessionID)
	query = v.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("timestamp ASC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&violations).Error; err != nil {
		return nil, 0, err
	}

	return violations, total, nil
}

func (v ViolationPostgreSQL) CountsBySession(ctx context.Context, sessionID string) (*repositories.ViolationCounts, error) {
	var counts repositories.ViolationCounts
	var total, focus, object int64

	base := func() *gorm.DB {
		return v.db.WithContext(ctx).
			Model(&models.Violation{}).
			Where("session_id = ? AND counted_in_score = true", sessionID)
	}

	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("type IN ?", typeKeys(models.FocusViolationTypes)).Count(&focus).Error; err != nil {
		return nil, err
	}
	if err := base().Where("type IN ?", typeKeys(models.ObjectViolationTypes)).Count(&object).Error; err != nil {
		return nil, err
	}

	counts.Total = int(total)
	counts.Focus = int(focus)
	counts.Object = int(object)
	return &counts, nil
}

func (v ViolationPostgreSQL) SummaryBySession(ctx context.Context, sessionID string) ([]*repositories.ViolationTypeSummary, error) {
	var summaries []*repositories.ViolationTypeSummary
	if err := v.db.WithContext(ctx).
		Model(&models.Violation{}).
		Select("type, COUNT(*) as count, AVG(confidence) as avg_confidence, COALESCE(SUM(duration), 0) as total_duration").
		Where("session_id = ?", sessionID).
		Group("type").
		Order("count DESC").
		Scan(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

func (v ViolationPostgreSQL) MarkResolved(ctx context.Context, id uint, reviewedBy string, notes *string, reviewedAt time.Time) error {
	result := v.db.WithContext(ctx).
		Model(&models.Violation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolved":     true,
			"reviewed_by":  reviewedBy,
			"reviewed_at":  reviewedAt,
			"review_notes": notes,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (v ViolationPostgreSQL) applyFilters(query *gorm.DB, filters repositories.ViolationFilters) *gorm.DB {
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Severity != nil {
		query = query.Where("severity = ?", *filters.Severity)
	}
	if filters.Source != nil {
		query = query.Where("source = ?", *filters.Source)
	}
	if filters.Resolved != nil {
		query = query.Where("resolved = ?", *filters.Resolved)
	}
	if filters.DateFrom != nil {
		query = query.Where("timestamp >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("timestamp <= ?", *filters.DateTo)
	}
	return query
}

func typeKeys(set map[models.ViolationType]bool) []models.ViolationType {
	keys := make([]models.ViolationType, 0, len(set))
	for t := range set {
		keys = append(keys, t)
	}
	return keys
}
