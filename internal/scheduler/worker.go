package scheduler

import (
	"context"
	"errors"
	"fmt"

	"leadpilot_backend/internal/automation/triggers"
	"leadpilot_backend/internal/automation/webhook"
	campaigns "leadpilot_backend/internal/campaigns/repository"
	leads "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Deps are the automation services the worker dispatches tasks to.
type Deps struct {
	AutoReply  *triggers.AutoReply
	Intention  *triggers.IntentionAnalysis
	Dispatcher *webhook.Dispatcher
	Sender     triggers.MessageSender
	Leads      triggers.LeadStore
	Sources    campaigns.SourceReader
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	deps   Deps
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deps Deps, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		deps:   deps,
		log:    log,
	}

	mux.HandleFunc(TaskAutoReplyDue, w.handleAutoReplyDue)
	mux.HandleFunc(TaskIntentionAnalysisDue, w.handleIntentionAnalysisDue)
	mux.HandleFunc(TaskWebhookDelivery, w.handleWebhookDelivery)
	mux.HandleFunc(TaskSendMessage, w.handleSendMessage)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleAutoReplyDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDebouncedTriggerPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	if err := w.deps.AutoReply.Run(ctx, leadID, payload.Version); err != nil {
		if isFinalAttempt(ctx) {
			// The counter must not outlive the task or it would block
			// future triggers until the TTL expires.
			if abandonErr := w.deps.AutoReply.Abandon(ctx, leadID); abandonErr != nil {
				w.log.Warn("auto-reply abandon failed", "lead_id", leadID, "error", abandonErr)
			}
			w.log.DispatchError("auto_reply", leadID.String(), retryAttempt(ctx), err)
		}
		return err
	}
	return nil
}

func (w *Worker) handleIntentionAnalysisDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDebouncedTriggerPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	if err := w.deps.Intention.Run(ctx, leadID, payload.Version); err != nil {
		if isFinalAttempt(ctx) {
			if abandonErr := w.deps.Intention.Abandon(ctx, leadID); abandonErr != nil {
				w.log.Warn("intention abandon failed", "lead_id", leadID, "error", abandonErr)
			}
			w.log.DispatchError("intention_analysis", leadID.String(), retryAttempt(ctx), err)
		}
		return err
	}
	return nil
}

func (w *Worker) handleWebhookDelivery(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseWebhookDeliveryPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	sourceID, err := uuid.Parse(payload.SourceID)
	if err != nil {
		return err
	}

	return w.deps.Dispatcher.Attempt(ctx, leadID, sourceID, payload.Attempt, payload.Extra)
}

func (w *Worker) handleSendMessage(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSendMessagePayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	sourceID, err := uuid.Parse(payload.SourceID)
	if err != nil {
		return err
	}

	lead, err := w.deps.Leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			w.log.Warn("send-message task for missing lead", "lead_id", leadID)
			return nil
		}
		return err
	}

	source, err := w.deps.Sources.GetSource(ctx, sourceID)
	if err != nil {
		if errors.Is(err, campaigns.ErrSourceNotFound) {
			w.log.Warn("send-message task for missing source", "source_id", sourceID)
			return nil
		}
		return err
	}

	if err := w.deps.Sender.Send(ctx, source, lead.Phone, payload.Body); err != nil {
		return err
	}

	if _, err := w.deps.Leads.InsertMessage(ctx, leadID, leads.DirectionOutbound, payload.Body); err != nil {
		w.log.DatabaseError("send-message insert", err)
	}

	w.log.TaskEvent("message_sent", leadID.String(), "source_id", sourceID.String())
	return nil
}

// isFinalAttempt reports whether the task has no queue retries left.
func isFinalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func retryAttempt(ctx context.Context) int {
	retried, _ := asynq.GetRetryCount(ctx)
	return retried + 1
}
