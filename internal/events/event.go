// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadpilot_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadIntentionFinalized is published when a lead's intention is classified,
// either by the AI classifier or by the timeout sweep.
type LeadIntentionFinalized struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	CampaignID uuid.UUID `json:"campaignId"`
	Intention  string    `json:"intention"`
	Source     string    `json:"source"` // "classifier" or "sweep"
}

func (e LeadIntentionFinalized) EventName() string { return "leads.intention.finalized" }

// LeadAssigned is published when the round-robin cursor hands a lead to a
// sales user.
type LeadAssigned struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	CampaignID uuid.UUID `json:"campaignId"`
	AssigneeID uuid.UUID `json:"assigneeId"`
}

func (e LeadAssigned) EventName() string { return "leads.lead.assigned" }

// LeadExpired is published when the pending-intent sweep closes out a lead
// that never replied within the timeout window.
type LeadExpired struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	CampaignID   uuid.UUID `json:"campaignId"`
	LastOutbound time.Time `json:"lastOutbound"`
}

func (e LeadExpired) EventName() string { return "leads.lead.expired" }

// WebhookDelivered is published after a successful webhook delivery.
type WebhookDelivered struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	SourceID   uuid.UUID `json:"sourceId"`
	StatusCode int       `json:"statusCode"`
	Attempt    int       `json:"attempt"`
}

func (e WebhookDelivered) EventName() string { return "leads.webhook.delivered" }

// WebhookDeliveryFailed is published after the final failed delivery attempt.
type WebhookDeliveryFailed struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	SourceID uuid.UUID `json:"sourceId"`
	Attempt  int       `json:"attempt"`
	Reason   string    `json:"reason"`
}

func (e WebhookDeliveryFailed) EventName() string { return "leads.webhook.delivery_failed" }
