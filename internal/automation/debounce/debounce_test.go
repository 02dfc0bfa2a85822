package debounce

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadpilot_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeEnqueuer records enqueued trigger tasks instead of scheduling them.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueuedTask
}

type enqueuedTask struct {
	leadID  uuid.UUID
	kind    Kind
	version int64
	delay   time.Duration
}

func (f *fakeEnqueuer) EnqueueTrigger(_ context.Context, leadID uuid.UUID, kind Kind, version int64, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, enqueuedTask{leadID: leadID, kind: kind, version: version, delay: delay})
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeEnqueuer) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	enq := &fakeEnqueuer{}
	return NewScheduler(NewRedisVersionStore(client), enq, logger.New("development")), enq
}

func TestTriggerCarriesPostIncrementVersion(t *testing.T) {
	sched, enq := newTestScheduler(t)
	ctx := context.Background()
	leadID := uuid.New()

	for i := 1; i <= 3; i++ {
		if err := sched.Trigger(ctx, leadID, KindAutoReply, time.Second); err != nil {
			t.Fatalf("trigger %d: %v", i, err)
		}
	}

	if len(enq.tasks) != 3 {
		t.Fatalf("expected 3 enqueued tasks, got %d", len(enq.tasks))
	}
	for i, task := range enq.tasks {
		if task.version != int64(i+1) {
			t.Errorf("task %d carries version %d, want %d", i, task.version, i+1)
		}
	}
}

// Of K triggers in a burst, only the task from the last trigger runs its
// payload; the earlier K-1 are no-ops.
func TestDebounceCoalescing(t *testing.T) {
	sched, enq := newTestScheduler(t)
	ctx := context.Background()
	leadID := uuid.New()

	const k = 5
	for i := 0; i < k; i++ {
		if err := sched.Trigger(ctx, leadID, KindIntentionAnalysis, time.Minute); err != nil {
			t.Fatalf("trigger %d: %v", i, err)
		}
	}

	executions := 0
	for _, task := range enq.tasks {
		err := sched.RunIfCurrent(ctx, task.leadID, task.kind, task.version, func(context.Context) error {
			executions++
			return nil
		})
		if err != nil {
			t.Fatalf("RunIfCurrent(version=%d): %v", task.version, err)
		}
	}

	if executions != 1 {
		t.Fatalf("expected exactly 1 execution out of %d tasks, got %d", k, executions)
	}
}

func TestStaleTaskDoesNotClearCounter(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()
	leadID := uuid.New()

	_ = sched.Trigger(ctx, leadID, KindAutoReply, 0)
	_ = sched.Trigger(ctx, leadID, KindAutoReply, 0)

	// Stale task (version 1) must not run and must not touch the counter.
	err := sched.RunIfCurrent(ctx, leadID, KindAutoReply, 1, func(context.Context) error {
		t.Fatal("stale task executed")
		return nil
	})
	if err != nil {
		t.Fatalf("stale RunIfCurrent: %v", err)
	}

	// The current task (version 2) still owns the counter and runs.
	ran := false
	err = sched.RunIfCurrent(ctx, leadID, KindAutoReply, 2, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("current RunIfCurrent: %v", err)
	}
	if !ran {
		t.Fatal("current task did not execute")
	}
}

func TestSuccessfulRunClearsCounter(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()
	leadID := uuid.New()

	_ = sched.Trigger(ctx, leadID, KindAutoReply, 0)

	if err := sched.RunIfCurrent(ctx, leadID, KindAutoReply, 1, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RunIfCurrent: %v", err)
	}

	// A re-delivered duplicate of the same task now finds no counter and
	// must be a no-op.
	err := sched.RunIfCurrent(ctx, leadID, KindAutoReply, 1, func(context.Context) error {
		t.Fatal("duplicate task executed after cleanup")
		return nil
	})
	if err != nil {
		t.Fatalf("duplicate RunIfCurrent: %v", err)
	}
}

// Triggers for different leads or different kinds never gate each other.
func TestDebounceNonInterference(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()
	leadA := uuid.New()
	leadB := uuid.New()

	_ = sched.Trigger(ctx, leadA, KindAutoReply, 0)
	_ = sched.Trigger(ctx, leadA, KindIntentionAnalysis, 0)
	_ = sched.Trigger(ctx, leadB, KindAutoReply, 0)

	executions := 0
	run := func(leadID uuid.UUID, kind Kind) {
		t.Helper()
		if err := sched.RunIfCurrent(ctx, leadID, kind, 1, func(context.Context) error {
			executions++
			return nil
		}); err != nil {
			t.Fatalf("RunIfCurrent(%s/%s): %v", leadID, kind, err)
		}
	}

	run(leadA, KindAutoReply)
	run(leadA, KindIntentionAnalysis)
	run(leadB, KindAutoReply)

	if executions != 3 {
		t.Fatalf("expected 3 independent executions, got %d", executions)
	}
}

func TestTaskErrorKeepsCounterForRetry(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()
	leadID := uuid.New()

	_ = sched.Trigger(ctx, leadID, KindIntentionAnalysis, 0)

	boom := func(context.Context) error { return context.DeadlineExceeded }
	if err := sched.RunIfCurrent(ctx, leadID, KindIntentionAnalysis, 1, boom); err == nil {
		t.Fatal("expected task error to propagate")
	}

	// The retried attempt still passes the version gate.
	ran := false
	if err := sched.RunIfCurrent(ctx, leadID, KindIntentionAnalysis, 1, func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("retry RunIfCurrent: %v", err)
	}
	if !ran {
		t.Fatal("retry did not execute after transient failure")
	}
}

func TestAbandonClearsCounter(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()
	leadID := uuid.New()

	_ = sched.Trigger(ctx, leadID, KindAutoReply, 0)

	if err := sched.Abandon(ctx, leadID, KindAutoReply); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	// With the counter gone the old task is a no-op, and a fresh trigger
	// starts a new version sequence.
	err := sched.RunIfCurrent(ctx, leadID, KindAutoReply, 1, func(context.Context) error {
		t.Fatal("task executed after abandon")
		return nil
	})
	if err != nil {
		t.Fatalf("RunIfCurrent after abandon: %v", err)
	}

	if err := sched.Trigger(ctx, leadID, KindAutoReply, 0); err != nil {
		t.Fatalf("re-trigger after abandon: %v", err)
	}
	ran := false
	if err := sched.RunIfCurrent(ctx, leadID, KindAutoReply, 1, func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("RunIfCurrent after re-trigger: %v", err)
	}
	if !ran {
		t.Fatal("fresh trigger after abandon did not execute")
	}
}
