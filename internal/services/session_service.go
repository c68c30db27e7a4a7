package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/proctorhub/session-service/internal/cache"
	"github.com/proctorhub/session-service/internal/events"
	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/repositories"
	"github.com/proctorhub/session-service/internal/validator"
)

// SessionService orchestrates the interview session lifecycle:
// scheduled -> in_progress -> completed | terminated. Terminal states are
// final; counters and score are frozen on entry.
type SessionService interface {
	Create(ctx context.Context, req *CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	GetWithViolations(ctx context.Context, sessionID string) (*models.Session, error)
	List(ctx context.Context, filters repositories.SessionFilters) ([]*models.Session, int64, error)

	Start(ctx context.Context, sessionID string) (*models.Session, error)
	End(ctx context.Context, sessionID string) (*models.Session, error)
	Terminate(ctx context.Context, sessionID string) (*models.Session, error)

	SetPaths(ctx context.Context, sessionID string, req *SetPathsRequest) error
	Stats(ctx context.Context, sessionID string) (*SessionStats, error)
}

type CreateSessionRequest struct {
	SessionID       string `json:"session_id" validate:"omitempty,min=8,max=64"`
	CandidateName   string `json:"candidate_name" validate:"required,min=1,max=200"`
	CandidateEmail  string `json:"candidate_email" validate:"omitempty,email"`
	InterviewerName string `json:"interviewer_name" validate:"omitempty,max=200"`
}

type SetPathsRequest struct {
	VideoRecordingPath *string `json:"video_recording_path" validate:"omitempty,max=1024"`
	ReportPath         *string `json:"report_path" validate:"omitempty,max=1024"`
}

// SessionStats is the counter/score snapshot served to dashboards.
type SessionStats struct {
	SessionID            string               `json:"session_id"`
	Status               models.SessionStatus `json:"status"`
	ViolationCount       int                  `json:"violation_count"`
	FocusLostCount       int                  `json:"focus_lost_count"`
	ObjectViolationCount int                  `json:"object_violation_count"`
	IntegrityScore       int                  `json:"integrity_score"`
}

type sessionService struct {
	repo      repositories.Repository
	coord     *sessionCoordinator
	publisher events.EventPublisher
	cache     cache.CacheService
	logger    *slog.Logger
	validator *validator.Validator

	// Upper bound on waiting for in-flight ingestion when ending a session.
	drainTimeout time.Duration
}

func NewSessionService(
	repo repositories.Repository,
	coord Coordinator,
	publisher events.EventPublisher,
	cacheService cache.CacheService,
	logger *slog.Logger,
	v *validator.Validator,
	drainTimeout time.Duration,
) SessionService {
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	return &sessionService{
		repo:         repo,
		coord:        coord.internal(),
		publisher:    publisher,
		cache:        cacheService,
		logger:       logger,
		validator:    v,
		drainTimeout: drainTimeout,
	}
}

func (s *sessionService) Create(ctx context.Context, req *CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := s.repo.Session().GetBySessionID(ctx, sessionID); err == nil {
		return nil, ErrSessionIDTaken
	}

	session := &models.Session{
		SessionID:       sessionID,
		CandidateName:   req.CandidateName,
		CandidateEmail:  req.CandidateEmail,
		InterviewerName: req.InterviewerName,
		Status:          models.SessionScheduled,
		IntegrityScore:  100,
	}

	if err := s.repo.Session().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Session created",
		"session_id", sessionID,
		"candidate", req.CandidateName)

	s.publish(ctx, events.NewSessionCreatedEvent(session))

	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.repo.Session().GetBySessionID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *sessionService) GetWithViolations(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.repo.Session().GetBySessionIDWithViolations(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session with violations: %w", err)
	}
	return session, nil
}

func (s *sessionService) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.Session, int64, error) {
	sessions, total, err := s.repo.Session().List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}

// Start moves a session into in_progress and stamps the start time if unset.
// Starting an already-running session is a no-op.
func (s *sessionService) Start(ctx context.Context, sessionID string) (*models.Session, error) {
	unlock := s.coord.Lock(sessionID)
	defer unlock()

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionInProgress:
		return session, nil
	case models.SessionScheduled:
	default:
		return nil, ErrSessionAlreadyEnded
	}

	now := time.Now()
	session.Status = models.SessionInProgress
	if session.StartTime == nil {
		session.StartTime = &now
	}

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s.invalidateStats(ctx, sessionID)
	s.logger.Info("Session started", "session_id", sessionID)
	s.publish(ctx, events.NewSessionStartedEvent(session))

	return session, nil
}

// End completes a session. It first waits, bounded by the drain timeout, for
// in-flight violation ingestion to finish so the final counters do not miss
// violations reported in the last moments of the interview, then recomputes
// the counters one final time and freezes the score.
func (s *sessionService) End(ctx context.Context, sessionID string) (*models.Session, error) {
	drainCtx, cancel := context.WithTimeout(ctx, s.drainTimeout)
	defer cancel()
	if err := s.coord.WaitIdle(drainCtx, sessionID); err != nil {
		// Proceed with whatever counters are available rather than hang the
		// user-facing end action.
		s.logger.Warn("Ingestion drain timed out before session end",
			"session_id", sessionID,
			"timeout", s.drainTimeout.String())
	}

	return s.finish(ctx, sessionID, models.SessionCompleted)
}

// Terminate aborts a session (interviewer-forced close). No drain wait: the
// abort path favors immediacy, late violations are still kept for audit.
func (s *sessionService) Terminate(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.finish(ctx, sessionID, models.SessionTerminated)
}

func (s *sessionService) finish(ctx context.Context, sessionID string, terminal models.SessionStatus) (*models.Session, error) {
	unlock := s.coord.Lock(sessionID)
	defer unlock()

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, ErrSessionAlreadyEnded
	}

	counts, err := s.repo.Violation().CountsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute final counters: %w", err)
	}
	score := ComputeScore(counts.Focus, counts.Total)

	now := time.Now()
	session.Status = terminal
	session.EndTime = &now
	session.ViolationCount = counts.Total
	session.FocusLostCount = counts.Focus
	session.ObjectViolationCount = counts.Object
	session.IntegrityScore = score

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to finish session: %w", err)
	}

	s.invalidateStats(ctx, sessionID)
	s.logger.Info("Session finished",
		"session_id", sessionID,
		"status", terminal,
		"violations", counts.Total,
		"integrity_score", score)
	s.publish(ctx, events.NewSessionEndedEvent(session))

	return session, nil
}

func (s *sessionService) SetPaths(ctx context.Context, sessionID string, req *SetPathsRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := s.Get(ctx, sessionID); err != nil {
		return err
	}

	if req.VideoRecordingPath != nil {
		if err := s.repo.Session().SetVideoRecordingPath(ctx, sessionID, *req.VideoRecordingPath); err != nil {
			return fmt.Errorf("failed to set video recording path: %w", err)
		}
	}
	if req.ReportPath != nil {
		if err := s.repo.Session().SetReportPath(ctx, sessionID, *req.ReportPath); err != nil {
			return fmt.Errorf("failed to set report path: %w", err)
		}
	}
	return nil
}

// Stats serves the counter snapshot, read-through cached in Redis so
// dashboard polling does not hit the database on every refresh.
func (s *sessionService) Stats(ctx context.Context, sessionID string) (*SessionStats, error) {
	key := statsCacheKey(sessionID)

	var stats SessionStats
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &stats); err == nil {
			return &stats, nil
		}
	}

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats = SessionStats{
		SessionID:            session.SessionID,
		Status:               session.Status,
		ViolationCount:       session.ViolationCount,
		FocusLostCount:       session.FocusLostCount,
		ObjectViolationCount: session.ObjectViolationCount,
		IntegrityScore:       session.IntegrityScore,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, &stats, 30*time.Second); err != nil {
			s.logger.Warn("Failed to cache session stats", "session_id", sessionID, "error", err)
		}
	}

	return &stats, nil
}

func (s *sessionService) invalidateStats(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey(sessionID)); err != nil {
		s.logger.Warn("Failed to invalidate session stats cache", "session_id", sessionID, "error", err)
	}
}

func (s *sessionService) publish(ctx context.Context, event *events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish session event",
			"event_type", event.Type,
			"error", err)
	}
}

func statsCacheKey(sessionID string) string {
	return "session:stats:" + sessionID
}
