// Package webhook delivers lead data to configured external destinations
// with bounded retries and per-attempt outcome persistence.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	campaigns "leadpilot_backend/internal/campaigns/repository"
	"leadpilot_backend/internal/events"
	leads "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// MaxAttempts bounds total delivery attempts per dispatch.
	MaxAttempts = 3

	defaultTimeout  = 30 * time.Second
	bodyExcerptMax  = 500
	secretHeaderKey = "X-Webhook-Secret"
)

// backoffBeforeAttempt[n] is the wait before attempt n (1-indexed).
var backoffBeforeAttempt = map[int]time.Duration{
	2: 60 * time.Second,
	3: 300 * time.Second,
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:   {},
	http.MethodPost:  {},
	http.MethodPut:   {},
	http.MethodPatch: {},
}

// RetryScheduler re-enqueues the next delivery attempt after backoff.
type RetryScheduler interface {
	ScheduleWebhookDelivery(ctx context.Context, leadID, sourceID uuid.UUID, attempt int, delay time.Duration, extra map[string]any) error
}

// LeadStore is the lead persistence surface the dispatcher needs.
type LeadStore interface {
	leads.LeadReader
	leads.DeliveryResultWriter
}

// DeliveryResult is the outcome recorded on the lead after every attempt.
type DeliveryResult struct {
	StatusCode  int       `json:"status_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	BodyExcerpt string    `json:"body_excerpt,omitempty"`
	Attempt     int       `json:"attempt"`
	SentAt      time.Time `json:"sent_at"`
}

func (r DeliveryResult) success() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

type Dispatcher struct {
	store     LeadStore
	sources   campaigns.SourceReader
	campaigns campaigns.CampaignReader
	retries   RetryScheduler
	bus       events.Bus
	http      *http.Client
	limiter   *rate.Limiter
	log       *logger.Logger
}

func New(store LeadStore, sources campaigns.SourceReader, campaignReader campaigns.CampaignReader, retries RetryScheduler, bus events.Bus, timeout time.Duration, ratePerSecond float64, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}

	return &Dispatcher{
		store:     store,
		sources:   sources,
		campaigns: campaignReader,
		retries:   retries,
		bus:       bus,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		log:       log,
	}
}

// Dispatch starts a delivery: attempt 1 runs in this call.
func (d *Dispatcher) Dispatch(ctx context.Context, leadID, sourceID uuid.UUID, extra map[string]any) error {
	return d.Attempt(ctx, leadID, sourceID, 1, extra)
}

// Attempt performs one delivery attempt. Failures before the last attempt
// schedule the next one with the backoff schedule and return nil; the final
// failure is terminal and reported, never re-raised to the queue.
func (d *Dispatcher) Attempt(ctx context.Context, leadID, sourceID uuid.UUID, attempt int, extra map[string]any) error {
	lead, err := d.store.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			d.log.Warn("webhook dispatch for missing lead", "lead_id", leadID)
			return nil
		}
		return err
	}

	source, err := d.sources.GetSource(ctx, sourceID)
	if err != nil {
		if errors.Is(err, campaigns.ErrSourceNotFound) {
			d.log.ConfigError("webhook dispatch", apperr.Configuration(
				fmt.Sprintf("source %s not found", sourceID)))
			return nil
		}
		return err
	}

	url, method, cfgErr := validateSource(source)
	if cfgErr != nil {
		// Not retried; requires an administrator fix.
		d.log.ConfigError("webhook dispatch", cfgErr)
		return nil
	}

	payload, err := d.buildPayload(ctx, lead, source, extra)
	if err != nil {
		return err
	}

	result := d.deliver(ctx, url, method, source.ConfigValue("secret"), payload, attempt)

	sent := result.success()
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := d.store.SetWebhookResult(ctx, leadID, sent, resultJSON); err != nil {
		return err
	}

	if sent {
		d.log.TaskEvent("webhook_delivered", leadID.String(),
			"source_id", sourceID.String(), "attempt", attempt, "status", result.StatusCode)
		d.bus.Publish(ctx, events.WebhookDelivered{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     leadID,
			SourceID:   sourceID,
			StatusCode: result.StatusCode,
			Attempt:    attempt,
		})
		return nil
	}

	if attempt < MaxAttempts {
		next := attempt + 1
		return d.retries.ScheduleWebhookDelivery(ctx, leadID, sourceID, next, backoffBeforeAttempt[next], extra)
	}

	reason := result.Error
	if reason == "" {
		reason = fmt.Sprintf("destination returned %d", result.StatusCode)
	}
	d.log.DispatchError("webhook", leadID.String(), attempt, errors.New(reason))
	d.bus.Publish(ctx, events.WebhookDeliveryFailed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		SourceID:  sourceID,
		Attempt:   attempt,
		Reason:    reason,
	})
	return nil
}

func validateSource(source campaigns.Source) (url, method string, err *apperr.Error) {
	if source.Type != campaigns.SourceTypeWebhook {
		return "", "", apperr.Configuration(
			fmt.Sprintf("source %s has type %q, want %q", source.ID, source.Type, campaigns.SourceTypeWebhook))
	}

	url = strings.TrimSpace(source.ConfigValue("url"))
	if url == "" {
		return "", "", apperr.Configuration(fmt.Sprintf("source %s has no url configured", source.ID))
	}

	method = strings.ToUpper(strings.TrimSpace(source.ConfigValue("method")))
	if method == "" {
		return "", "", apperr.Configuration(fmt.Sprintf("source %s has no method configured", source.ID))
	}
	if _, ok := allowedMethods[method]; !ok {
		return "", "", apperr.Configuration(fmt.Sprintf("source %s has unsupported method %q", source.ID, method))
	}

	return url, method, nil
}

func (d *Dispatcher) deliver(ctx context.Context, url, method, secret string, payload []byte, attempt int) DeliveryResult {
	result := DeliveryResult{Attempt: attempt, SentAt: time.Now().UTC()}

	if err := d.limiter.Wait(ctx); err != nil {
		result.Error = err.Error()
		return result
	}

	var body io.Reader
	if method != http.MethodGet {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if secret != "" {
		req.Header.Set(secretHeaderKey, secret)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	result.StatusCode = resp.StatusCode

	data, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptMax+1))
	excerpt := string(data)
	if len(excerpt) > bodyExcerptMax {
		excerpt = excerpt[:bodyExcerptMax]
	}
	result.BodyExcerpt = strings.TrimSpace(excerpt)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("destination returned %d", resp.StatusCode)
	}

	return result
}
