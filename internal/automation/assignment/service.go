// Package assignment distributes sales-ready leads across a campaign's
// rotation pool with a persisted round-robin cursor.
package assignment

import (
	"context"
	"time"

	campaigns "leadpilot_backend/internal/campaigns/repository"
	"leadpilot_backend/internal/events"
	leads "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"

	"github.com/google/uuid"
)

type Service struct {
	store campaigns.AssignmentStore
	leads leads.AssignmentWriter
	bus   events.Bus
	log   *logger.Logger
}

func New(store campaigns.AssignmentStore, leadWriter leads.AssignmentWriter, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, leads: leadWriter, bus: bus, log: log}
}

// Advance moves the campaign's cursor one step and returns the assignee it
// lands on. Read-then-write under normal isolation: a race can hand two
// leads to the same user, which is a human-correctable outcome, not a
// correctness violation.
func (s *Service) Advance(ctx context.Context, campaignID uuid.UUID) (campaigns.Assignee, error) {
	assignees, err := s.store.ListActiveAssignees(ctx, campaignID)
	if err != nil {
		return campaigns.Assignee{}, err
	}
	if len(assignees) == 0 {
		return campaigns.Assignee{}, apperr.Exhausted("no active assignees configured").WithOp("assignment.Advance")
	}

	cursor, err := s.store.GetCursor(ctx, campaignID)
	if err != nil {
		return campaigns.Assignee{}, err
	}

	// The cursor may point past the end after the pool shrinks; the modulo
	// brings it back into range.
	nextIndex := (cursor.CurrentIndex + 1) % len(assignees)
	if nextIndex < 0 {
		nextIndex = 0
	}

	if err := s.store.SaveCursor(ctx, campaignID, nextIndex, time.Now()); err != nil {
		return campaigns.Assignee{}, err
	}

	return assignees[nextIndex], nil
}

// Reset rewinds the campaign's rotation to the start.
func (s *Service) Reset(ctx context.Context, campaignID uuid.UUID) error {
	return s.store.ResetCursor(ctx, campaignID)
}

// AssignLead advances the rotation and records the outcome on the lead:
// the assignee on success, the assignment error on exhaustion (surfaced
// for manual retry, never auto-retried).
func (s *Service) AssignLead(ctx context.Context, lead leads.Lead) error {
	assignee, err := s.Advance(ctx, lead.CampaignID)
	if err != nil {
		if apperr.Is(err, apperr.KindExhausted) {
			if recordErr := s.leads.SetAssignmentError(ctx, lead.ID, err.Error()); recordErr != nil {
				s.log.DatabaseError("assignment error record", recordErr)
			}
		}
		return err
	}

	if err := s.leads.SetAssignee(ctx, lead.ID, assignee.UserID); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.LeadAssigned{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		CampaignID: lead.CampaignID,
		AssigneeID: assignee.UserID,
	})

	s.log.TaskEvent("lead_assigned", lead.ID.String(), "assignee_id", assignee.UserID.String())
	return nil
}
