package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadpilot_backend/internal/automation/debounce"
	"leadpilot_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// triggerTaskRetries bounds queue-level retries of a debounced payload.
// The debounce counter is only cleared once the task succeeds or the final
// attempt abandons it.
const triggerTaskRetries = 2

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueTrigger implements debounce.Enqueuer: it schedules the delayed
// task that re-checks the version counter before doing any work.
func (c *Client) EnqueueTrigger(ctx context.Context, leadID uuid.UUID, kind debounce.Kind, version int64, delay time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload := DebouncedTriggerPayload{LeadID: leadID.String(), Version: version}

	var task *asynq.Task
	var err error
	switch kind {
	case debounce.KindAutoReply:
		task, err = NewAutoReplyDueTask(payload)
	case debounce.KindIntentionAnalysis:
		task, err = NewIntentionAnalysisDueTask(payload)
	default:
		return fmt.Errorf("unknown trigger kind %q", kind)
	}
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.Queue(c.queue),
		asynq.MaxRetry(triggerTaskRetries),
	)
	return err
}

// ScheduleWebhookDelivery enqueues one delivery attempt. Retries are not
// queue retries: the dispatcher re-enqueues the next attempt itself with
// the backoff schedule, so each task runs at most once.
func (c *Client) ScheduleWebhookDelivery(ctx context.Context, leadID, sourceID uuid.UUID, attempt int, delay time.Duration, extra map[string]any) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewWebhookDeliveryTask(WebhookDeliveryPayload{
		LeadID:   leadID.String(),
		SourceID: sourceID.String(),
		Attempt:  attempt,
		Extra:    extra,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.Queue(c.queue),
		asynq.MaxRetry(0),
	)
	return err
}

// ScheduleMessageSend enqueues an outbound message, optionally delayed by
// the option's configured minutes.
func (c *Client) ScheduleMessageSend(ctx context.Context, leadID, sourceID uuid.UUID, body string, delay time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewSendMessageTask(SendMessagePayload{
		LeadID:   leadID.String(),
		SourceID: sourceID.String(),
		Body:     body,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.Queue(c.queue),
		asynq.MaxRetry(triggerTaskRetries),
	)
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
