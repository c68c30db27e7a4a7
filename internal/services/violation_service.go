package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/proctorhub/session-service/internal/cache"
	"github.com/proctorhub/session-service/internal/events"
	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/repositories"
	"github.com/proctorhub/session-service/internal/validator"
	"gorm.io/datatypes"
)

// ViolationService is the only component allowed to create violation records
// and trigger score recomputation. Ingestion for one session is serialized
// end-to-end; different sessions never block each other.
type ViolationService interface {
	Ingest(ctx context.Context, sessionID string, req *IngestViolationRequest, reportedBy models.ParticipantRole) (*IngestResult, error)
	IngestBatch(ctx context.Context, sessionID string, reqs []*IngestViolationRequest, reportedBy models.ParticipantRole) (*BatchIngestResult, error)

	List(ctx context.Context, sessionID string, filters repositories.ViolationFilters) ([]*models.Violation, int64, error)
	Summary(ctx context.Context, sessionID string) ([]*repositories.ViolationTypeSummary, error)
	Resolve(ctx context.Context, violationID uint, req *ResolveViolationRequest) (*models.Violation, error)
}

// RoomNotifier delivers realtime notifications to connected room
// participants. The violation pipeline only ever notifies the interviewer
// side: candidates are not shown live violation detail so they cannot coach
// against the detector.
type RoomNotifier interface {
	NotifyInterviewer(sessionID string, messageType string, payload interface{})
}

type IngestViolationRequest struct {
	Type        string  `json:"type" validate:"required,violation_type"`
	Description string  `json:"description" validate:"required,min=1,max=500"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity" validate:"omitempty,violation_severity"`

	// Event time as reported by the client. Clock skew is tolerated; absent
	// timestamps default to ingestion time.
	Timestamp *time.Time `json:"timestamp"`
	Duration  *float64   `json:"duration" validate:"omitempty,gte=0"`
	Source    string     `json:"source" validate:"omitempty,violation_source"`

	// Metadata arrives either as a JSON object or as a JSON-encoded string.
	// Malformed metadata is preserved under a "raw" key, never rejected.
	Metadata json.RawMessage `json:"metadata"`

	ScreenshotPath *string `json:"screenshot_path"`
}

type ViolationStats struct {
	TotalViolations  int `json:"total_violations"`
	FocusViolations  int `json:"focus_violations"`
	ObjectViolations int `json:"object_violations"`
}

type IngestResult struct {
	Violation      *models.Violation `json:"violation"`
	IntegrityScore int               `json:"integrity_score"`
	Stats          ViolationStats    `json:"stats"`

	// CountedInScore is false when the session had already reached a
	// terminal status: the violation is kept for audit but the frozen score
	// is untouched.
	CountedInScore bool `json:"counted_in_score"`

	// ScoreStale signals that the violation was persisted but score
	// recomputation kept failing. Callers must not present the returned
	// score as fresh.
	ScoreStale bool `json:"score_stale"`
}

type BatchIngestResult struct {
	Violations     []*models.Violation `json:"violations"`
	IntegrityScore int                 `json:"integrity_score"`
	Stats          ViolationStats      `json:"stats"`
	CountedInScore bool                `json:"counted_in_score"`
	ScoreStale     bool                `json:"score_stale"`
}

type ResolveViolationRequest struct {
	ReviewedBy  string  `json:"reviewed_by" validate:"required,min=1,max=200"`
	ReviewNotes *string `json:"review_notes" validate:"omitempty,max=2000"`
}

const scoreRecomputeAttempts = 3

type violationService struct {
	repo      repositories.Repository
	coord     *sessionCoordinator
	publisher events.EventPublisher
	cache     cache.CacheService
	notifier  RoomNotifier
	logger    *slog.Logger
	validator *validator.Validator
}

func NewViolationService(
	repo repositories.Repository,
	coord Coordinator,
	publisher events.EventPublisher,
	cacheService cache.CacheService,
	notifier RoomNotifier,
	logger *slog.Logger,
	v *validator.Validator,
) ViolationService {
	return &violationService{
		repo:      repo,
		coord:     coord.internal(),
		publisher: publisher,
		cache:     cacheService,
		notifier:  notifier,
		logger:    logger,
		validator: v,
	}
}

func (s *violationService) Ingest(ctx context.Context, sessionID string, req *IngestViolationRequest, reportedBy models.ParticipantRole) (*IngestResult, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "is required", sessionID)
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	exit := s.coord.Enter(sessionID)
	defer exit()
	unlock := s.coord.Lock(sessionID)
	defer unlock()

	session, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	violation := s.normalize(sessionID, req, reportedBy)
	violation.CountedInScore = !session.Status.IsTerminal()

	if err := s.createWithRetry(ctx, violation); err != nil {
		return nil, fmt.Errorf("failed to persist violation: %w", err)
	}

	if !violation.CountedInScore {
		// Audit-only record after a terminal status: the frozen score and
		// counters stay exactly as they were.
		s.logger.Warn("Violation recorded after session end, excluded from score",
			"session_id", sessionID,
			"type", violation.Type,
			"session_status", session.Status)
		s.publish(ctx, events.NewViolationRecordedEvent(violation, session.IntegrityScore))
		return &IngestResult{
			Violation:      violation,
			IntegrityScore: session.IntegrityScore,
			Stats: ViolationStats{
				TotalViolations:  session.ViolationCount,
				FocusViolations:  session.FocusLostCount,
				ObjectViolations: session.ObjectViolationCount,
			},
			CountedInScore: false,
		}, nil
	}

	counts, score, stale := s.recomputeScore(ctx, sessionID)
	if stale {
		// Report the last persisted score, flagged stale, never zeros.
		counts = repositories.ViolationCounts{
			Total:  session.ViolationCount,
			Focus:  session.FocusLostCount,
			Object: session.ObjectViolationCount,
		}
		score = session.IntegrityScore
	}
	result := &IngestResult{
		Violation:      violation,
		IntegrityScore: score,
		Stats:          statsFromCounts(counts),
		CountedInScore: true,
		ScoreStale:     stale,
	}

	s.afterIngest(ctx, sessionID, []*models.Violation{violation}, score, result.Stats, stale)
	return result, nil
}

func (s *violationService) IngestBatch(ctx context.Context, sessionID string, reqs []*IngestViolationRequest, reportedBy models.ParticipantRole) (*BatchIngestResult, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "is required", sessionID)
	}
	if len(reqs) == 0 {
		return nil, NewValidationError("violations", "must not be empty", nil)
	}
	for i, req := range reqs {
		if err := s.validator.Validate(req); err != nil {
			return nil, fmt.Errorf("validation failed for violation %d: %w", i, err)
		}
	}

	exit := s.coord.Enter(sessionID)
	defer exit()
	unlock := s.coord.Lock(sessionID)
	defer unlock()

	session, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	counted := !session.Status.IsTerminal()
	violations := make([]*models.Violation, len(reqs))
	for i, req := range reqs {
		violations[i] = s.normalize(sessionID, req, reportedBy)
		violations[i].CountedInScore = counted
	}

	if err := s.repo.Violation().CreateBatch(ctx, violations); err != nil {
		return nil, fmt.Errorf("failed to persist violation batch: %w", err)
	}

	if !counted {
		return &BatchIngestResult{
			Violations:     violations,
			IntegrityScore: session.IntegrityScore,
			Stats: ViolationStats{
				TotalViolations:  session.ViolationCount,
				FocusViolations:  session.FocusLostCount,
				ObjectViolations: session.ObjectViolationCount,
			},
		}, nil
	}

	// One recompute for the whole batch.
	counts, score, stale := s.recomputeScore(ctx, sessionID)
	if stale {
		counts = repositories.ViolationCounts{
			Total:  session.ViolationCount,
			Focus:  session.FocusLostCount,
			Object: session.ObjectViolationCount,
		}
		score = session.IntegrityScore
	}
	result := &BatchIngestResult{
		Violations:     violations,
		IntegrityScore: score,
		Stats:          statsFromCounts(counts),
		CountedInScore: true,
		ScoreStale:     stale,
	}

	s.afterIngest(ctx, sessionID, violations, score, result.Stats, stale)
	return result, nil
}

func (s *violationService) List(ctx context.Context, sessionID string, filters repositories.ViolationFilters) ([]*models.Violation, int64, error) {
	if _, err := s.resolveSession(ctx, sessionID); err != nil {
		return nil, 0, err
	}
	violations, total, err := s.repo.Violation().GetBySession(ctx, sessionID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list violations: %w", err)
	}
	return violations, total, nil
}

func (s *violationService) Summary(ctx context.Context, sessionID string) ([]*repositories.ViolationTypeSummary, error) {
	if _, err := s.resolveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	summary, err := s.repo.Violation().SummaryBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize violations: %w", err)
	}
	return summary, nil
}

func (s *violationService) Resolve(ctx context.Context, violationID uint, req *ResolveViolationRequest) (*models.Violation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	violation, err := s.repo.Violation().GetByID(ctx, violationID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrViolationNotFound
		}
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	if violation.Resolved {
		return nil, ErrViolationAlreadyResolved
	}

	now := time.Now()
	if err := s.repo.Violation().MarkResolved(ctx, violationID, req.ReviewedBy, req.ReviewNotes, now); err != nil {
		return nil, fmt.Errorf("failed to resolve violation: %w", err)
	}

	violation.Resolved = true
	violation.ReviewedBy = &req.ReviewedBy
	violation.ReviewedAt = &now
	violation.ReviewNotes = req.ReviewNotes

	s.logger.Info("Violation resolved",
		"violation_id", violationID,
		"session_id", violation.SessionID,
		"reviewed_by", req.ReviewedBy)

	return violation, nil
}

// ===== PIPELINE STEPS =====

func (s *violationService) resolveSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.repo.Session().GetBySessionID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return session, nil
}

// normalize coerces a raw payload into a persistable violation: confidence
// clamped to [0,1], severity defaulted to medium, timestamp defaulted to
// ingestion time, metadata parsed with a raw-string fallback.
func (s *violationService) normalize(sessionID string, req *IngestViolationRequest, reportedBy models.ParticipantRole) *models.Violation {
	confidence := req.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	severity := models.ViolationSeverity(req.Severity)
	if !severity.Valid() {
		severity = models.SeverityMedium
	}

	timestamp := time.Now()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	source := models.ViolationSource(req.Source)
	if !source.Valid() {
		source = reportedBy.DetectionSource()
	}

	return &models.Violation{
		SessionID:      sessionID,
		Type:           models.ViolationType(req.Type),
		Description:    req.Description,
		Severity:       severity,
		Confidence:     confidence,
		Timestamp:      timestamp,
		Duration:       req.Duration,
		Source:         source,
		Metadata:       ParseMetadata(req.Metadata),
		ScreenshotPath: req.ScreenshotPath,
	}
}

// ParseMetadata interprets detector metadata that may arrive as a JSON
// object, a JSON-encoded string of an object, or garbage. Garbage is kept
// verbatim under "raw" so the evidence is never lost.
func ParseMetadata(raw json.RawMessage) datatypes.JSONMap {
	if len(raw) == 0 {
		return nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if err := json.Unmarshal([]byte(str), &m); err == nil {
			return m
		}
		return datatypes.JSONMap{"raw": str}
	}

	return datatypes.JSONMap{"raw": string(raw)}
}

func (s *violationService) createWithRetry(ctx context.Context, violation *models.Violation) error {
	var err error
	for attempt := 1; attempt <= scoreRecomputeAttempts; attempt++ {
		if err = s.repo.Violation().Create(ctx, violation); err == nil {
			return nil
		}
		s.logger.Warn("Violation insert failed, retrying",
			"session_id", violation.SessionID,
			"attempt", attempt,
			"error", err)
		if !backoff(ctx, attempt) {
			break
		}
	}
	return NewTransientPersistenceError("violation insert", err)
}

// recomputeScore re-derives the three counters from the full violation set
// and writes the fresh score. Recomputation is a pure re-aggregation, so it
// is idempotent and safe to retry; a stale flag is returned instead of an
// error when all retries fail, because the violation itself is already
// persisted at this point.
func (s *violationService) recomputeScore(ctx context.Context, sessionID string) (repositories.ViolationCounts, int, bool) {
	var lastErr error
	for attempt := 1; attempt <= scoreRecomputeAttempts; attempt++ {
		counts, err := s.repo.Violation().CountsBySession(ctx, sessionID)
		if err == nil {
			score := ComputeScore(counts.Focus, counts.Total)
			if err = s.repo.Session().UpdateCountersAndScore(ctx, sessionID, *counts, score); err == nil {
				return *counts, score, false
			}
		}
		lastErr = err
		s.logger.Warn("Score recomputation failed, retrying",
			"session_id", sessionID,
			"attempt", attempt,
			"error", err)
		if !backoff(ctx, attempt) {
			break
		}
	}

	s.logger.Error("Score recomputation exhausted retries, score is stale",
		"session_id", sessionID,
		"error", lastErr)
	return repositories.ViolationCounts{}, 0, true
}

func (s *violationService) afterIngest(ctx context.Context, sessionID string, violations []*models.Violation, score int, stats ViolationStats, stale bool) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, statsCacheKey(sessionID)); err != nil {
			s.logger.Warn("Failed to invalidate session stats cache", "session_id", sessionID, "error", err)
		}
	}

	for _, v := range violations {
		s.publish(ctx, events.NewViolationRecordedEvent(v, score))
		if s.notifier != nil {
			s.notifier.NotifyInterviewer(sessionID, "real-time-violation", v)
		}
	}

	if stale {
		return
	}

	s.publish(ctx, events.NewScoreUpdatedEvent(sessionID, score, stats.TotalViolations, stats.FocusViolations, stats.ObjectViolations))
	if s.notifier != nil {
		s.notifier.NotifyInterviewer(sessionID, "score-updated", map[string]interface{}{
			"session_id":      sessionID,
			"integrity_score": score,
			"stats":           stats,
		})
	}
}

func (s *violationService) publish(ctx context.Context, event *events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish violation event",
			"event_type", event.Type,
			"error", err)
	}
}

func statsFromCounts(counts repositories.ViolationCounts) ViolationStats {
	return ViolationStats{
		TotalViolations:  counts.Total,
		FocusViolations:  counts.Focus,
		ObjectViolations: counts.Object,
	}
}

// backoff sleeps with exponential growth between retries. Returns false when
// the context is done and retrying should stop.
func backoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(attempt) * 50 * time.Millisecond
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
