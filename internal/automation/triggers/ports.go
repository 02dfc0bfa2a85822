package triggers

import (
	"context"

	campaigns "leadpilot_backend/internal/campaigns/repository"
	leads "leadpilot_backend/internal/leads/repository"
)

// MessageSender delivers an outbound message through a messaging source.
// Implementations raise an error on transport or config failure.
type MessageSender interface {
	Send(ctx context.Context, source campaigns.Source, toPhone, body string) error
}

// Classifier maps a lead's recent inbound messages to an intention label.
// An empty label with a nil error means "no decision yet".
type Classifier interface {
	Classify(ctx context.Context, messages []string, campaignContext string) (string, error)
}

// Assigner hands a lead to the next sales user in the campaign rotation.
type Assigner interface {
	AssignLead(ctx context.Context, lead leads.Lead) error
}

// LeadStore is the lead persistence surface the triggers need.
type LeadStore interface {
	leads.LeadReader
	leads.LeadStateWriter
	leads.MessageReader
	leads.MessageWriter
}
