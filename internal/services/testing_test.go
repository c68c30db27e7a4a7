package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/repositories"
	"gorm.io/gorm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryRepository is an in-memory Repository used by the service tests.
// Counter queries are derived from the stored violation set exactly like the
// SQL implementation derives them, and failure counters allow injecting
// transient errors to exercise the retry paths.
type memoryRepository struct {
	mu sync.Mutex

	sessions   map[string]*models.Session
	violations []*models.Violation
	nextID     uint

	// Remaining injected failures per operation.
	failCounts         int
	failCounterUpdates int
	failCreates        int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		sessions: make(map[string]*models.Session),
		nextID:   1,
	}
}

func (r *memoryRepository) Session() repositories.SessionRepository     { return &memorySessionRepo{r} }
func (r *memoryRepository) Violation() repositories.ViolationRepository { return &memoryViolationRepo{r} }

func (r *memoryRepository) Transaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

// seedSession stores a session and returns it.
func (r *memoryRepository) seedSession(sessionID string, status models.SessionStatus) *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &models.Session{
		ID:             r.nextID,
		SessionID:      sessionID,
		CandidateName:  "Test Candidate",
		Status:         status,
		IntegrityScore: 100,
	}
	r.nextID++
	r.sessions[sessionID] = s
	return s
}

func (r *memoryRepository) violationsFor(sessionID string) []*models.Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Violation
	for _, v := range r.violations {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	return out
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	return &cp
}

type memorySessionRepo struct{ r *memoryRepository }

func (m *memorySessionRepo) Create(ctx context.Context, session *models.Session) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if _, ok := m.r.sessions[session.SessionID]; ok {
		return gorm.ErrDuplicatedKey
	}
	session.ID = m.r.nextID
	m.r.nextID++
	m.r.sessions[session.SessionID] = copySession(session)
	return nil
}

func (m *memorySessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copySession(s), nil
}

func (m *memorySessionRepo) GetBySessionIDWithViolations(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := m.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, v := range m.r.violationsFor(sessionID) {
		s.Violations = append(s.Violations, *v)
	}
	return s, nil
}

func (m *memorySessionRepo) Update(ctx context.Context, session *models.Session) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if _, ok := m.r.sessions[session.SessionID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.r.sessions[session.SessionID] = copySession(session)
	return nil
}

func (m *memorySessionRepo) Delete(ctx context.Context, sessionID string) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	delete(m.r.sessions, sessionID)
	return nil
}

func (m *memorySessionRepo) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.Session, int64, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var out []*models.Session
	for _, s := range m.r.sessions {
		if filters.Status != nil && s.Status != *filters.Status {
			continue
		}
		out = append(out, copySession(s))
	}
	return out, int64(len(out)), nil
}

func (m *memorySessionRepo) GetByStatus(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.Session, error) {
	out, _, err := m.List(ctx, repositories.SessionFilters{Status: &status})
	return out, err
}

func (m *memorySessionRepo) UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Status = status
	return nil
}

func (m *memorySessionRepo) SetStartTime(ctx context.Context, sessionID string, t time.Time) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if s.StartTime == nil {
		s.StartTime = &t
	}
	return nil
}

func (m *memorySessionRepo) SetEndTime(ctx context.Context, sessionID string, t time.Time) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.EndTime = &t
	return nil
}

func (m *memorySessionRepo) UpdateCountersAndScore(ctx context.Context, sessionID string, counts repositories.ViolationCounts, score int) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if m.r.failCounterUpdates > 0 {
		m.r.failCounterUpdates--
		return gorm.ErrInvalidTransaction
	}
	s, ok := m.r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.ViolationCount = counts.Total
	s.FocusLostCount = counts.Focus
	s.ObjectViolationCount = counts.Object
	s.IntegrityScore = score
	return nil
}

func (m *memorySessionRepo) SetVideoRecordingPath(ctx context.Context, sessionID string, path string) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.VideoRecordingPath = &path
	return nil
}

func (m *memorySessionRepo) SetReportPath(ctx context.Context, sessionID string, path string) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.ReportPath = &path
	return nil
}

type memoryViolationRepo struct{ r *memoryRepository }

func (m *memoryViolationRepo) Create(ctx context.Context, violation *models.Violation) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if m.r.failCreates > 0 {
		m.r.failCreates--
		return gorm.ErrInvalidTransaction
	}
	violation.ID = m.r.nextID
	m.r.nextID++
	violation.CreatedAt = time.Now()
	m.r.violations = append(m.r.violations, violation)
	return nil
}

func (m *memoryViolationRepo) CreateBatch(ctx context.Context, violations []*models.Violation) error {
	for _, v := range violations {
		if err := m.Create(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryViolationRepo) GetByID(ctx context.Context, id uint) (*models.Violation, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, v := range m.r.violations {
		if v.ID == id {
			cp := *v
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryViolationRepo) GetBySession(ctx context.Context, sessionID string, filters repositories.ViolationFilters) ([]*models.Violation, int64, error) {
	var out []*models.Violation
	for _, v := range m.r.violationsFor(sessionID) {
		if filters.Type != nil && v.Type != *filters.Type {
			continue
		}
		if filters.Severity != nil && v.Severity != *filters.Severity {
			continue
		}
		if filters.Resolved != nil && v.Resolved != *filters.Resolved {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (m *memoryViolationRepo) CountsBySession(ctx context.Context, sessionID string) (*repositories.ViolationCounts, error) {
	m.r.mu.Lock()
	if m.r.failCounts > 0 {
		m.r.failCounts--
		m.r.mu.Unlock()
		return nil, gorm.ErrInvalidTransaction
	}
	m.r.mu.Unlock()

	counts := &repositories.ViolationCounts{}
	for _, v := range m.r.violationsFor(sessionID) {
		if !v.CountedInScore {
			continue
		}
		counts.Total++
		if models.FocusViolationTypes[v.Type] {
			counts.Focus++
		}
		if models.ObjectViolationTypes[v.Type] {
			counts.Object++
		}
	}
	return counts, nil
}

func (m *memoryViolationRepo) SummaryBySession(ctx context.Context, sessionID string) ([]*repositories.ViolationTypeSummary, error) {
	byType := make(map[models.ViolationType]*repositories.ViolationTypeSummary)
	for _, v := range m.r.violationsFor(sessionID) {
		row, ok := byType[v.Type]
		if !ok {
			row = &repositories.ViolationTypeSummary{Type: v.Type}
			byType[v.Type] = row
		}
		row.AvgConfidence = (row.AvgConfidence*float64(row.Count) + v.Confidence) / float64(row.Count+1)
		row.Count++
		if v.Duration != nil {
			row.TotalDuration += *v.Duration
		}
	}
	out := make([]*repositories.ViolationTypeSummary, 0, len(byType))
	for _, row := range byType {
		out = append(out, row)
	}
	return out, nil
}

func (m *memoryViolationRepo) MarkResolved(ctx context.Context, id uint, reviewedBy string, notes *string, reviewedAt time.Time) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, v := range m.r.violations {
		if v.ID == id {
			v.Resolved = true
			v.ReviewedBy = &reviewedBy
			v.ReviewNotes = notes
			v.ReviewedAt = &reviewedAt
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// recordingNotifier captures realtime notifications sent by the pipeline.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notifiedMessage
}

type notifiedMessage struct {
	SessionID   string
	MessageType string
	Payload     interface{}
}

func (n *recordingNotifier) NotifyInterviewer(sessionID string, messageType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notifiedMessage{SessionID: sessionID, MessageType: messageType, Payload: payload})
}

func (n *recordingNotifier) messages() []notifiedMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifiedMessage, len(n.sent))
	copy(out, n.sent)
	return out
}
