package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpilot_backend/internal/ai/classifier"
	"leadpilot_backend/internal/automation/assignment"
	"leadpilot_backend/internal/automation/debounce"
	"leadpilot_backend/internal/automation/router"
	"leadpilot_backend/internal/automation/sweep"
	"leadpilot_backend/internal/automation/triggers"
	"leadpilot_backend/internal/automation/webhook"
	campaignrepo "leadpilot_backend/internal/campaigns/repository"
	"leadpilot_backend/internal/events"
	leadrepo "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/internal/scheduler"
	"leadpilot_backend/internal/whatsapp"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/db"
	platformevents "leadpilot_backend/platform/events"
	"leadpilot_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting automation worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()

	eventBus := platformevents.NewInMemoryBus(log)
	var bus events.Bus = eventBus

	leadRepo := leadrepo.New(pool)
	campaignRepo := campaignrepo.New(pool)

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize queue client", "error", err)
		panic("failed to initialize queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	debounceScheduler := debounce.NewScheduler(
		debounce.NewRedisVersionStore(redisClient),
		queueClient,
		log,
	)

	sender := whatsapp.NewClient(log)

	actionRouter := router.New(campaignRepo, campaignRepo, queueClient, queueClient, log)

	dispatcher := webhook.New(
		leadRepo, campaignRepo, campaignRepo, queueClient, bus,
		cfg.WebhookTimeout, cfg.WebhookRatePerSecond, log,
	)

	assigner := assignment.New(campaignRepo, leadRepo, bus, log)

	var intentClassifier triggers.Classifier
	if cfg.IsClassifierEnabled() {
		intentClassifier = classifier.NewClient(classifier.Config{
			BaseURL: cfg.ClassifierAPIURL,
			APIKey:  cfg.ClassifierAPIKey,
		})
	} else {
		log.Warn("classifier not configured; intention analysis will make no decisions")
		intentClassifier = noopClassifier{}
	}

	autoReply := triggers.NewAutoReply(
		leadRepo, campaignRepo, campaignRepo, debounceScheduler, sender,
		cfg.AutoReplyDelay, log,
	)
	intention := triggers.NewIntentionAnalysis(
		leadRepo, campaignRepo, debounceScheduler, intentClassifier,
		actionRouter, assigner, bus,
		cfg.IntentionDelay, cfg.IntentionMessageWindow, log,
	)

	pendingSweep := sweep.New(leadRepo, bus, log, cfg.SweepInterval, cfg.SweepTimeout)
	go pendingSweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, scheduler.Deps{
		AutoReply:  autoReply,
		Intention:  intention,
		Dispatcher: dispatcher,
		Sender:     sender,
		Leads:      leadRepo,
		Sources:    campaignRepo,
	}, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// noopClassifier keeps leads qualifying until an operator configures the
// classifier API; the sweep still resolves them eventually.
type noopClassifier struct{}

func (noopClassifier) Classify(context.Context, []string, string) (string, error) {
	return "", nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
