// Package triggers contains the two debounced lead triggers: the auto-reply
// on inbound messages and the delayed AI intention analysis.
package triggers

import (
	"context"
	"errors"
	"time"

	"leadpilot_backend/internal/automation/debounce"
	"leadpilot_backend/internal/automation/router"
	campaigns "leadpilot_backend/internal/campaigns/repository"
	"leadpilot_backend/internal/leads/domain"
	leads "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/platform/logger"

	"github.com/google/uuid"
)

// AutoReply coalesces a burst of inbound messages (multi-part texts) into a
// single automated reply, configured by the campaign's direct option.
type AutoReply struct {
	store    LeadStore
	options  campaigns.OptionReader
	sources  campaigns.SourceReader
	debounce *debounce.Scheduler
	sender   MessageSender
	delay    time.Duration
	log      *logger.Logger
}

func NewAutoReply(store LeadStore, options campaigns.OptionReader, sources campaigns.SourceReader, sched *debounce.Scheduler, sender MessageSender, delay time.Duration, log *logger.Logger) *AutoReply {
	return &AutoReply{
		store:    store,
		options:  options,
		sources:  sources,
		debounce: sched,
		sender:   sender,
		delay:    delay,
		log:      log,
	}
}

// Trigger schedules a debounced auto-reply for the lead. Safe to call on
// every inbound message; only the last call of a burst takes effect.
func (s *AutoReply) Trigger(ctx context.Context, leadID uuid.UUID) error {
	return s.debounce.Trigger(ctx, leadID, debounce.KindAutoReply, s.delay)
}

// Run is called by the worker when the delayed task fires.
func (s *AutoReply) Run(ctx context.Context, leadID uuid.UUID, observedVersion int64) error {
	return s.debounce.RunIfCurrent(ctx, leadID, debounce.KindAutoReply, observedVersion, func(ctx context.Context) error {
		return s.reply(ctx, leadID)
	})
}

// Abandon clears the debounce counter after the final failed attempt.
func (s *AutoReply) Abandon(ctx context.Context, leadID uuid.UUID) error {
	return s.debounce.Abandon(ctx, leadID, debounce.KindAutoReply)
}

func (s *AutoReply) reply(ctx context.Context, leadID uuid.UUID) error {
	lead, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			s.log.Warn("auto-reply for missing lead", "lead_id", leadID)
			return nil
		}
		return err
	}

	if lead.Stage().IsTerminal() {
		return nil
	}

	opt, err := s.options.GetOption(ctx, lead.CampaignID, router.SignalDirect)
	if errors.Is(err, campaigns.ErrOptionNotFound) {
		return s.store.UpdateAutomationStatus(ctx, leadID, domain.AutomationSkipped)
	}
	if err != nil {
		return err
	}
	if !opt.Enabled || opt.SourceID == nil {
		return s.store.UpdateAutomationStatus(ctx, leadID, domain.AutomationSkipped)
	}

	body := ""
	switch {
	case opt.Message != nil && *opt.Message != "":
		body = router.RenderBody(*opt.Message, lead)
	case opt.Template != nil && *opt.Template != "":
		body = router.RenderBody(*opt.Template, lead)
	default:
		return s.store.UpdateAutomationStatus(ctx, leadID, domain.AutomationSkipped)
	}

	source, err := s.sources.GetSource(ctx, *opt.SourceID)
	if err != nil {
		return err
	}

	if err := s.store.UpdateAutomationStatus(ctx, leadID, domain.AutomationProcessing); err != nil {
		return err
	}

	if err := s.sender.Send(ctx, source, lead.Phone, body); err != nil {
		if statusErr := s.store.UpdateAutomationStatus(ctx, leadID, domain.AutomationFailed); statusErr != nil {
			s.log.DatabaseError("auto-reply status update", statusErr)
		}
		return err
	}

	if _, err := s.store.InsertMessage(ctx, leadID, leads.DirectionOutbound, body); err != nil {
		s.log.DatabaseError("auto-reply message insert", err)
	}

	s.log.TaskEvent("auto_reply_sent", leadID.String())
	return s.store.UpdateAutomationStatus(ctx, leadID, domain.AutomationCompleted)
}
