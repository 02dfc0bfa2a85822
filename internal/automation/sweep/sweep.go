// Package sweep closes out leads whose pending intention never got a reply
// within the timeout window. It is the only path that finalizes an
// intention without the classifier.
package sweep

import (
	"context"
	"sync"
	"time"

	"leadpilot_backend/internal/events"
	leads "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval    = 15 * time.Minute
	defaultTimeout     = 24 * time.Hour
	defaultBatchSize   = 500
	defaultConcurrency = 8
)

// Stats summarizes one sweep pass.
type Stats struct {
	Scanned int
	Expired int
	Skipped int
}

type PendingIntentSweep struct {
	store       Store
	bus         events.Bus
	log         *logger.Logger
	interval    time.Duration
	timeout     time.Duration
	batchSize   int
	concurrency int
}

// Store combines the sweep's repository needs.
type Store interface {
	leads.SweepReader
	leads.MessageReader
	leads.LeadStateWriter
}

func New(store Store, bus events.Bus, log *logger.Logger, interval, timeout time.Duration) *PendingIntentSweep {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &PendingIntentSweep{
		store:       store,
		bus:         bus,
		log:         log,
		interval:    interval,
		timeout:     timeout,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
}

// Run executes the sweep on a fixed schedule until the context is done.
func (s *PendingIntentSweep) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *PendingIntentSweep) sweep(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Warn("pending intent sweep failed", "error", err)
		return
	}
	if stats.Scanned > 0 {
		s.log.SweepResult(stats.Scanned, stats.Expired, stats.Skipped)
	}
}

// RunOnce scans pending-intention leads and expires those whose last
// outbound message aged past the timeout with no inbound reply. Running it
// twice back to back yields the same end state: expired leads no longer
// match the scan.
func (s *PendingIntentSweep) RunOnce(ctx context.Context) (Stats, error) {
	pending, err := s.store.ListPendingIntention(ctx, s.batchSize)
	if err != nil {
		return Stats{}, err
	}

	var mu sync.Mutex
	stats := Stats{Scanned: len(pending)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	deadline := time.Now().Add(-s.timeout)

	for _, lead := range pending {
		g.Go(func() error {
			expired, err := s.examine(gctx, lead, deadline)
			if err != nil {
				return err
			}
			mu.Lock()
			if expired {
				stats.Expired++
			} else {
				stats.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *PendingIntentSweep) examine(ctx context.Context, lead leads.Lead, deadline time.Time) (bool, error) {
	lastOutbound, ok, err := s.store.LastOutboundMessage(ctx, lead.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		// Never contacted; nothing to time out against.
		return false, nil
	}

	if lastOutbound.CreatedAt.After(deadline) {
		// Still within the window.
		return false, nil
	}

	replied, err := s.store.HasInboundAfter(ctx, lead.ID, lastOutbound.CreatedAt)
	if err != nil {
		return false, err
	}
	if replied {
		// The lead did respond; the normal trigger path owns this one.
		return false, nil
	}

	expired, err := s.store.ExpireLead(ctx, lead.ID)
	if err != nil {
		return false, err
	}
	if !expired {
		// Another path finalized the lead between the scan and now.
		return false, nil
	}

	s.bus.Publish(ctx, events.LeadExpired{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		CampaignID:   lead.CampaignID,
		LastOutbound: lastOutbound.CreatedAt,
	})

	return true, nil
}
