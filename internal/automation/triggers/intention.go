package triggers

import (
	"context"
	"errors"
	"time"

	"leadpilot_backend/internal/automation/debounce"
	"leadpilot_backend/internal/automation/router"
	campaigns "leadpilot_backend/internal/campaigns/repository"
	"leadpilot_backend/internal/events"
	"leadpilot_backend/internal/leads/domain"
	leads "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"

	"github.com/google/uuid"
)

// IntentionAnalysis waits out a burst of inbound messages, then classifies
// the lead's intention over the recent conversation and routes the
// resulting signal.
type IntentionAnalysis struct {
	store         LeadStore
	campaigns     campaigns.CampaignReader
	debounce      *debounce.Scheduler
	classifier    Classifier
	router        *router.Router
	assigner      Assigner
	bus           events.Bus
	delay         time.Duration
	messageWindow int
	log           *logger.Logger
}

func NewIntentionAnalysis(store LeadStore, campaignReader campaigns.CampaignReader, sched *debounce.Scheduler, classifier Classifier, rt *router.Router, assigner Assigner, bus events.Bus, delay time.Duration, messageWindow int, log *logger.Logger) *IntentionAnalysis {
	if messageWindow < 1 {
		messageWindow = 10
	}
	return &IntentionAnalysis{
		store:         store,
		campaigns:     campaignReader,
		debounce:      sched,
		classifier:    classifier,
		router:        rt,
		assigner:      assigner,
		bus:           bus,
		delay:         delay,
		messageWindow: messageWindow,
		log:           log,
	}
}

// Trigger opens the classification window on the lead and schedules the
// debounced analysis. Each further inbound message pushes the analysis back.
func (s *IntentionAnalysis) Trigger(ctx context.Context, leadID uuid.UUID) error {
	if err := s.store.MarkIntentionPending(ctx, leadID); err != nil {
		return err
	}
	return s.debounce.Trigger(ctx, leadID, debounce.KindIntentionAnalysis, s.delay)
}

// Run is called by the worker when the delayed task fires.
func (s *IntentionAnalysis) Run(ctx context.Context, leadID uuid.UUID, observedVersion int64) error {
	return s.debounce.RunIfCurrent(ctx, leadID, debounce.KindIntentionAnalysis, observedVersion, func(ctx context.Context) error {
		return s.analyze(ctx, leadID)
	})
}

// Abandon clears the debounce counter after the final failed attempt.
func (s *IntentionAnalysis) Abandon(ctx context.Context, leadID uuid.UUID) error {
	return s.debounce.Abandon(ctx, leadID, debounce.KindIntentionAnalysis)
}

func (s *IntentionAnalysis) analyze(ctx context.Context, leadID uuid.UUID) error {
	lead, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			s.log.Warn("intention analysis for missing lead", "lead_id", leadID)
			return nil
		}
		return err
	}

	// Terminal check beyond the version gate: another path (sweep, manual)
	// may have finalized the intention while this task waited.
	if lead.IntentionStatus == domain.IntentionFinalized || lead.IntentionStatus == domain.IntentionSentToClient {
		return nil
	}
	if lead.Status == domain.StatusClosed || lead.Status == domain.StatusInvalid {
		return nil
	}

	inbound, err := s.store.ListRecentInbound(ctx, leadID, s.messageWindow)
	if err != nil {
		return err
	}
	if len(inbound) == 0 {
		// Nothing to classify; the lead stays qualifying until the sweep
		// or a future trigger resolves it.
		return nil
	}

	bodies := make([]string, 0, len(inbound))
	for _, msg := range inbound {
		bodies = append(bodies, msg.Body)
	}

	campaignContext := ""
	if campaign, err := s.campaigns.GetCampaign(ctx, lead.CampaignID); err == nil {
		campaignContext = campaign.Name
	}

	label, err := s.classifier.Classify(ctx, bodies, campaignContext)
	if err != nil {
		return err
	}
	if label == "" {
		// No decision yet is not an error.
		s.log.TaskEvent("intention_undecided", leadID.String())
		return nil
	}

	finalized, err := s.store.FinalizeIntention(ctx, leadID, label)
	if err != nil {
		return err
	}
	if !finalized {
		// Lost the race to another finalizer.
		return nil
	}

	s.bus.Publish(ctx, events.LeadIntentionFinalized{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     leadID,
		CampaignID: lead.CampaignID,
		Intention:  label,
		Source:     "classifier",
	})

	lead.Intention = &label
	lead.IntentionStatus = domain.IntentionFinalized

	signal := router.SignalTimeout
	if label == domain.LabelInterested {
		signal = router.SignalInterested
	}

	if err := s.router.ResolveAndExecute(ctx, lead.CampaignID, signal, lead); err != nil {
		if apperr.Is(err, apperr.KindConfiguration) {
			// Operator problem; the classification itself stands.
			s.log.ConfigError("intention routing", err)
		} else {
			return err
		}
	}

	if label == domain.LabelInterested && s.assigner != nil {
		if err := s.assigner.AssignLead(ctx, lead); err != nil {
			// Recorded on the lead for manual retry; never unwinds the
			// classification.
			s.log.Warn("lead assignment failed", "lead_id", leadID, "error", err)
		}
	}

	s.log.TaskEvent("intention_finalized", leadID.String(), "intention", label)
	return nil
}
