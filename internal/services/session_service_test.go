package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/proctorhub/session-service/internal/events"
	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/validator"
)

func newTestSessionService(repo *memoryRepository, coord Coordinator, drain time.Duration) (SessionService, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	svc := NewSessionService(repo, coord, publisher, nil, logger, validator.New(), drain)
	return svc, publisher
}

func TestSessionService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates with generated session id", func(t *testing.T) {
		repo := newMemoryRepository()
		svc, publisher := newTestSessionService(repo, NewCoordinator(), 0)

		session, err := svc.Create(ctx, &CreateSessionRequest{CandidateName: "Ada"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if session.SessionID == "" {
			t.Error("SessionID is empty, want generated id")
		}
		if session.Status != models.SessionScheduled {
			t.Errorf("Status = %s, want scheduled", session.Status)
		}
		if session.IntegrityScore != 100 {
			t.Errorf("IntegrityScore = %d, want 100", session.IntegrityScore)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventSessionCreated {
			t.Errorf("published = %v, want one session.created", published)
		}
	})

	t.Run("rejects duplicate session id", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.seedSession("interview-42", models.SessionScheduled)
		svc, _ := newTestSessionService(repo, NewCoordinator(), 0)

		_, err := svc.Create(ctx, &CreateSessionRequest{
			SessionID:     "interview-42",
			CandidateName: "Ada",
		})
		if !errors.Is(err, ErrSessionIDTaken) {
			t.Fatalf("Create() error = %v, want ErrSessionIDTaken", err)
		}
	})

	t.Run("rejects missing candidate name", func(t *testing.T) {
		repo := newMemoryRepository()
		svc, _ := newTestSessionService(repo, NewCoordinator(), 0)

		if _, err := svc.Create(ctx, &CreateSessionRequest{}); err == nil {
			t.Fatal("Create() accepted an empty candidate name")
		}
	})
}

func TestSessionService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.seedSession("sess-1", models.SessionScheduled)
	svc, publisher := newTestSessionService(repo, NewCoordinator(), 0)

	started, err := svc.Start(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Status != models.SessionInProgress || started.StartTime == nil {
		t.Errorf("started session = %+v", started)
	}

	// Starting twice is a no-op, not an error.
	again, err := svc.Start(ctx, "sess-1")
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if again.Status != models.SessionInProgress {
		t.Errorf("Status after restart = %s", again.Status)
	}

	ended, err := svc.End(ctx, "sess-1")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != models.SessionCompleted || ended.EndTime == nil {
		t.Errorf("ended session = %+v", ended)
	}

	// Terminal status is final.
	if _, err := svc.End(ctx, "sess-1"); !errors.Is(err, ErrSessionAlreadyEnded) {
		t.Fatalf("End() after end error = %v, want ErrSessionAlreadyEnded", err)
	}
	if _, err := svc.Start(ctx, "sess-1"); !errors.Is(err, ErrSessionAlreadyEnded) {
		t.Fatalf("Start() after end error = %v, want ErrSessionAlreadyEnded", err)
	}

	var types []events.EventType
	for _, e := range publisher.GetPublishedEvents() {
		types = append(types, e.Type)
	}
	want := []events.EventType{events.EventSessionStarted, events.EventSessionEnded}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event types = %v, want %v", types, want)
		}
	}
}

func TestSessionService_EndFreezesScore(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.seedSession("sess-1", models.SessionInProgress)
	coord := NewCoordinator()
	sessions, _ := newTestSessionService(repo, coord, 0)

	vsvc, _ := newTestViolationService(repo, nil)
	if _, err := vsvc.Ingest(ctx, "sess-1", focusReq(), models.RoleCandidate); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	ended, err := sessions.End(ctx, "sess-1")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.IntegrityScore != 85 || ended.ViolationCount != 1 {
		t.Errorf("frozen score/count = %d/%d, want 85/1", ended.IntegrityScore, ended.ViolationCount)
	}

	// A violation arriving after the end is audit-only and does not move
	// the frozen values.
	result, err := vsvc.Ingest(ctx, "sess-1", objectReq(), models.RoleInterviewer)
	if err != nil {
		t.Fatalf("post-end Ingest() error = %v", err)
	}
	if result.CountedInScore {
		t.Error("post-end violation counted in score")
	}

	session, _ := repo.Session().GetBySessionID(ctx, "sess-1")
	if session.IntegrityScore != 85 || session.ViolationCount != 1 {
		t.Errorf("score/count after post-end violation = %d/%d, want frozen 85/1",
			session.IntegrityScore, session.ViolationCount)
	}
}

func TestSessionService_EndWaitsForInflightIngestion(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.seedSession("sess-1", models.SessionInProgress)
	coord := NewCoordinator()
	sessions, _ := newTestSessionService(repo, coord, 2*time.Second)

	// Simulate one ingestion in flight, finishing shortly after End is
	// called. End must wait for it so the final counters include it.
	exit := coord.internal().Enter("sess-1")
	go func() {
		time.Sleep(50 * time.Millisecond)
		v := &models.Violation{
			SessionID:      "sess-1",
			Type:           models.ViolationLookingAway,
			Description:    "late detection",
			CountedInScore: true,
			Timestamp:      time.Now(),
		}
		_ = repo.Violation().Create(ctx, v)
		exit()
	}()

	ended, err := sessions.End(ctx, "sess-1")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.ViolationCount != 1 {
		t.Errorf("ViolationCount = %d, want 1 (late ingestion drained)", ended.ViolationCount)
	}
	if ended.IntegrityScore != 85 {
		t.Errorf("IntegrityScore = %d, want 85", ended.IntegrityScore)
	}
}

func TestSessionService_EndProceedsAfterDrainTimeout(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.seedSession("sess-1", models.SessionInProgress)
	coord := NewCoordinator()
	sessions, _ := newTestSessionService(repo, coord, 30*time.Millisecond)

	// An ingestion that never exits must not hang the end action.
	exit := coord.internal().Enter("sess-1")
	defer exit()

	done := make(chan error, 1)
	go func() {
		_, err := sessions.End(ctx, "sess-1")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("End() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("End() hung past the drain timeout")
	}
}

func TestSessionService_Terminate(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.seedSession("sess-1", models.SessionInProgress)
	svc, _ := newTestSessionService(repo, NewCoordinator(), 0)

	terminated, err := svc.Terminate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if terminated.Status != models.SessionTerminated {
		t.Errorf("Status = %s, want terminated", terminated.Status)
	}

	if _, err := svc.Terminate(ctx, "sess-1"); !errors.Is(err, ErrSessionAlreadyEnded) {
		t.Fatalf("second Terminate() error = %v, want ErrSessionAlreadyEnded", err)
	}
}

func TestSessionService_SetPaths(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.seedSession("sess-1", models.SessionCompleted)
	svc, _ := newTestSessionService(repo, NewCoordinator(), 0)

	video := "/recordings/sess-1.webm"
	report := "/reports/sess-1.pdf"
	err := svc.SetPaths(ctx, "sess-1", &SetPathsRequest{
		VideoRecordingPath: &video,
		ReportPath:         &report,
	})
	if err != nil {
		t.Fatalf("SetPaths() error = %v", err)
	}

	session, _ := repo.Session().GetBySessionID(ctx, "sess-1")
	if session.VideoRecordingPath == nil || *session.VideoRecordingPath != video {
		t.Errorf("VideoRecordingPath = %v, want %s", session.VideoRecordingPath, video)
	}
	if session.ReportPath == nil || *session.ReportPath != report {
		t.Errorf("ReportPath = %v, want %s", session.ReportPath, report)
	}

	if err := svc.SetPaths(ctx, "missing", &SetPathsRequest{VideoRecordingPath: &video}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("SetPaths(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionService_Stats(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	seeded := repo.seedSession("sess-1", models.SessionInProgress)
	seeded.ViolationCount = 2
	seeded.FocusLostCount = 1
	seeded.IntegrityScore = 75
	svc, _ := newTestSessionService(repo, NewCoordinator(), 0)

	stats, err := svc.Stats(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ViolationCount != 2 || stats.FocusLostCount != 1 || stats.IntegrityScore != 75 {
		t.Errorf("Stats = %+v", stats)
	}

	if _, err := svc.Stats(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Stats(missing) error = %v, want ErrSessionNotFound", err)
	}
}
