// Package router resolves a lead signal (selected option, finalized
// intention) to the campaign's configured action and executes it.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	campaigns "leadpilot_backend/internal/campaigns/repository"
	leads "leadpilot_backend/internal/leads/repository"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"

	"github.com/google/uuid"
)

// Signal keys understood by the router. They index the campaign's option
// rows.
const (
	SignalOptionOne  = "1"
	SignalOptionTwo  = "2"
	SignalInterested = "i"
	SignalTimeout    = "t"
	SignalDirect     = "0"
)

// ActionType is a closed set; Execute switches over it exhaustively so a
// new variant cannot be added without handling it there.
type ActionType int

const (
	ActionSkip ActionType = iota
	ActionSendTemplate
	ActionSendMessage
	ActionCallWebhook
)

// Raw option.action values as stored in campaign configuration.
const (
	actionNameSkip         = "skip"
	actionNameSendTemplate = "send_whatsapp_template"
	actionNameSendMessage  = "send_message"
	actionNameCallWebhook  = "call_webhook"
)

// Action is a resolved, executable effect: the variant tag plus the option
// row and (when the variant needs one) its destination source.
type Action struct {
	Type   ActionType
	Option campaigns.Option
	Source *campaigns.Source
}

// Delay returns how long execution of the action is deferred.
func (a Action) Delay() time.Duration {
	return time.Duration(a.Option.DelayMinutes) * time.Minute
}

// MessageScheduler enqueues a delayed outbound message send.
type MessageScheduler interface {
	ScheduleMessageSend(ctx context.Context, leadID, sourceID uuid.UUID, body string, delay time.Duration) error
}

// WebhookScheduler enqueues a webhook delivery attempt.
type WebhookScheduler interface {
	ScheduleWebhookDelivery(ctx context.Context, leadID, sourceID uuid.UUID, attempt int, delay time.Duration, extra map[string]any) error
}

type Router struct {
	options  campaigns.OptionReader
	sources  campaigns.SourceReader
	messages MessageScheduler
	webhooks WebhookScheduler
	log      *logger.Logger
}

func New(options campaigns.OptionReader, sources campaigns.SourceReader, messages MessageScheduler, webhooks WebhookScheduler, log *logger.Logger) *Router {
	return &Router{
		options:  options,
		sources:  sources,
		messages: messages,
		webhooks: webhooks,
		log:      log,
	}
}

// Resolve looks up the enabled option for the signal key. ok is false when
// no enabled option exists; callers treat that as a no-op, not an error.
// A present but misconfigured option is a configuration error.
func (r *Router) Resolve(ctx context.Context, campaignID uuid.UUID, signalKey string) (Action, bool, error) {
	opt, err := r.options.GetOption(ctx, campaignID, signalKey)
	if errors.Is(err, campaigns.ErrOptionNotFound) {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, err
	}
	if !opt.Enabled {
		return Action{}, false, nil
	}

	action := Action{Option: opt}

	switch opt.Action {
	case actionNameSkip:
		action.Type = ActionSkip
	case actionNameSendTemplate:
		if opt.Template == nil || strings.TrimSpace(*opt.Template) == "" {
			return Action{}, false, apperr.Configuration(
				fmt.Sprintf("option %q has no template configured", signalKey))
		}
		action.Type = ActionSendTemplate
	case actionNameSendMessage:
		if opt.Message == nil || strings.TrimSpace(*opt.Message) == "" {
			return Action{}, false, apperr.Configuration(
				fmt.Sprintf("option %q has no message configured", signalKey))
		}
		action.Type = ActionSendMessage
	case actionNameCallWebhook:
		action.Type = ActionCallWebhook
	default:
		return Action{}, false, apperr.Configuration(
			fmt.Sprintf("option %q has unknown action %q", signalKey, opt.Action))
	}

	if action.Type != ActionSkip {
		if opt.SourceID == nil {
			return Action{}, false, apperr.Configuration(
				fmt.Sprintf("option %q has no destination source", signalKey))
		}
		src, err := r.sources.GetSource(ctx, *opt.SourceID)
		if errors.Is(err, campaigns.ErrSourceNotFound) {
			return Action{}, false, apperr.Configuration(
				fmt.Sprintf("option %q references missing source %s", signalKey, opt.SourceID))
		}
		if err != nil {
			return Action{}, false, err
		}
		action.Source = &src
	}

	return action, true, nil
}

// Execute performs the resolved action for the lead. Sends and webhook
// deliveries are realized as delayed tasks honoring the option's delay,
// never as blocking sleeps.
func (r *Router) Execute(ctx context.Context, action Action, lead leads.Lead) error {
	switch action.Type {
	case ActionSkip:
		return nil

	case ActionSendTemplate:
		body := RenderBody(*action.Option.Template, lead)
		return r.messages.ScheduleMessageSend(ctx, lead.ID, action.Source.ID, body, action.Delay())

	case ActionSendMessage:
		body := RenderBody(*action.Option.Message, lead)
		return r.messages.ScheduleMessageSend(ctx, lead.ID, action.Source.ID, body, action.Delay())

	case ActionCallWebhook:
		return r.webhooks.ScheduleWebhookDelivery(ctx, lead.ID, action.Source.ID, 1, action.Delay(), nil)

	default:
		return apperr.Configuration(fmt.Sprintf("unhandled action type %d", action.Type))
	}
}

// ResolveAndExecute is the single-shot entry point used by the trigger
// services and the CRM surface.
func (r *Router) ResolveAndExecute(ctx context.Context, campaignID uuid.UUID, signalKey string, lead leads.Lead) error {
	action, ok, err := r.Resolve(ctx, campaignID, signalKey)
	if err != nil {
		return err
	}
	if !ok {
		r.log.Debug("no enabled option for signal", "campaign_id", campaignID, "signal", signalKey)
		return nil
	}
	return r.Execute(ctx, action, lead)
}

// RenderBody substitutes {{field}} placeholders with lead data in message
// bodies and templates.
func RenderBody(template string, lead leads.Lead) string {
	replacer := strings.NewReplacer(
		"{{id}}", lead.ID.String(),
		"{{name}}", lead.Name,
		"{{phone}}", lead.Phone,
		"{{city}}", derefString(lead.City),
		"{{intention}}", derefString(lead.Intention),
	)
	return replacer.Replace(template)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
