// Package debounce implements the version-gated scheduling primitive that
// coalesces bursts of lead events into a single delayed effect.
//
// Every trigger bumps a per-(lead, kind) counter and enqueues a delayed task
// carrying the post-increment version. When a task fires it re-reads the
// counter: a mismatch means a newer trigger superseded it and the task exits
// without effect. No job cancellation API is needed; stale tasks are cheap
// no-ops.
package debounce

import (
	"context"
	"time"

	"leadpilot_backend/platform/logger"

	"github.com/google/uuid"
)

// Kind names one debounced effect per lead. Different kinds never interfere.
type Kind string

const (
	KindAutoReply         Kind = "auto_reply"
	KindIntentionAnalysis Kind = "intention_analysis"
)

// VersionStore is the fast shared counter keeping one integer per
// (kind, lead) pair. Counters carry a TTL at least as long as the maximum
// scheduling delay; they are coordination state, not durable state.
type VersionStore interface {
	// Increment bumps the counter, initializing it to 1 on first use,
	// and returns the post-increment value.
	Increment(ctx context.Context, key string) (int64, error)
	// Get returns the current counter value; ok is false when the key
	// is absent (expired or already cleaned up).
	Get(ctx context.Context, key string) (int64, bool, error)
	// Delete removes the counter.
	Delete(ctx context.Context, key string) error
}

// Enqueuer schedules the delayed task that will call back into
// RunIfCurrent with the version it was built with.
type Enqueuer interface {
	EnqueueTrigger(ctx context.Context, leadID uuid.UUID, kind Kind, version int64, delay time.Duration) error
}

// Scheduler is the debounce primitive. It is instantiated once and shared
// by every trigger kind.
type Scheduler struct {
	store    VersionStore
	enqueuer Enqueuer
	log      *logger.Logger
}

func NewScheduler(store VersionStore, enqueuer Enqueuer, log *logger.Logger) *Scheduler {
	return &Scheduler{store: store, enqueuer: enqueuer, log: log}
}

func counterKey(leadID uuid.UUID, kind Kind) string {
	return "debounce:" + string(kind) + ":" + leadID.String()
}

// Trigger bumps the version counter and enqueues a delayed task carrying
// the post-increment version. Of N triggers within the delay window only
// the task enqueued by the last one will find its version current.
func (s *Scheduler) Trigger(ctx context.Context, leadID uuid.UUID, kind Kind, delay time.Duration) error {
	key := counterKey(leadID, kind)

	version, err := s.store.Increment(ctx, key)
	if err != nil {
		return err
	}

	return s.enqueuer.EnqueueTrigger(ctx, leadID, kind, version, delay)
}

// RunIfCurrent executes task only if observedVersion still matches the
// counter. A stale or missing counter is a silent no-op: the newer task
// owns both the effect and the counter cleanup. On success the counter is
// deleted; on task error it is left in place so the queue's retry of this
// same task can still pass the gate.
func (s *Scheduler) RunIfCurrent(ctx context.Context, leadID uuid.UUID, kind Kind, observedVersion int64, task func(context.Context) error) error {
	key := counterKey(leadID, kind)

	current, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || current != observedVersion {
		s.log.StaleTrigger(string(kind), leadID.String(), observedVersion, current)
		return nil
	}

	if err := task(ctx); err != nil {
		return err
	}

	return s.store.Delete(ctx, key)
}

// Abandon clears the counter after a task's final failed attempt so the
// stale entry cannot block future triggers until the TTL expires.
func (s *Scheduler) Abandon(ctx context.Context, leadID uuid.UUID, kind Kind) error {
	return s.store.Delete(ctx, counterKey(leadID, kind))
}
