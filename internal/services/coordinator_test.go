package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCoordinator_LockSerializesPerSession(t *testing.T) {
	coord := newSessionCoordinator()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := coord.Lock("session-a")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most 1 holder of the session lock, saw %d", maxActive)
	}
}

func TestCoordinator_DifferentSessionsDoNotBlock(t *testing.T) {
	coord := newSessionCoordinator()

	unlockA := coord.Lock("session-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := coord.Lock("session-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different session blocked")
	}
}

func TestCoordinator_WaitIdle(t *testing.T) {
	coord := newSessionCoordinator()

	t.Run("returns immediately with nothing in flight", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := coord.WaitIdle(ctx, "session-a"); err != nil {
			t.Fatalf("WaitIdle() = %v, want nil", err)
		}
	})

	t.Run("waits for in-flight work to exit", func(t *testing.T) {
		exit := coord.Enter("session-a")

		waited := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			waited <- coord.WaitIdle(ctx, "session-a")
		}()

		time.Sleep(10 * time.Millisecond)
		exit()

		if err := <-waited; err != nil {
			t.Fatalf("WaitIdle() = %v, want nil", err)
		}
	})

	t.Run("honors the context deadline", func(t *testing.T) {
		exit := coord.Enter("session-a")
		defer exit()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := coord.WaitIdle(ctx, "session-a"); err == nil {
			t.Fatal("WaitIdle() = nil, want deadline error")
		}
	})
}

func TestCoordinator_ExitIsIdempotent(t *testing.T) {
	coord := newSessionCoordinator()

	exit := coord.Enter("session-a")
	exit()
	exit() // second call must not panic or double-decrement

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := coord.WaitIdle(ctx, "session-a"); err != nil {
		t.Fatalf("WaitIdle() = %v, want nil", err)
	}
}

func TestCoordinator_EntriesAreReleased(t *testing.T) {
	coord := newSessionCoordinator()

	unlock := coord.Lock("session-a")
	unlock()
	exit := coord.Enter("session-a")
	exit()

	coord.mu.Lock()
	defer coord.mu.Unlock()
	if len(coord.entries) != 0 {
		t.Fatalf("expected coordinator map to be empty, has %d entries", len(coord.entries))
	}
}
