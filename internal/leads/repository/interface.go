package repository

import (
	"context"
	"encoding/json"
	"time"

	"leadpilot_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Lead, error)
	GetByPhone(ctx context.Context, phone string) (Lead, error)
}

// LeadStateWriter mutates the lead's automation and intention sub-states.
type LeadStateWriter interface {
	UpdateAutomationStatus(ctx context.Context, id uuid.UUID, status domain.AutomationStatus) error
	MarkIntentionPending(ctx context.Context, id uuid.UUID) error
	FinalizeIntention(ctx context.Context, id uuid.UUID, intention string) (bool, error)
	ExpireLead(ctx context.Context, id uuid.UUID) (bool, error)
}

// AssignmentWriter records assignment outcomes on leads.
type AssignmentWriter interface {
	SetAssignee(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	SetAssignmentError(ctx context.Context, id uuid.UUID, message string) error
}

// DeliveryResultWriter persists webhook delivery outcomes on the lead.
type DeliveryResultWriter interface {
	SetWebhookResult(ctx context.Context, id uuid.UUID, sent bool, result json.RawMessage) error
}

// SweepReader provides the scan the pending-intent sweep runs over.
type SweepReader interface {
	ListPendingIntention(ctx context.Context, limit int) ([]Lead, error)
}

// MessageReader provides read access to the lead's conversation.
type MessageReader interface {
	LastOutboundMessage(ctx context.Context, leadID uuid.UUID) (Message, bool, error)
	HasInboundAfter(ctx context.Context, leadID uuid.UUID, after time.Time) (bool, error)
	ListRecentInbound(ctx context.Context, leadID uuid.UUID, limit int) ([]Message, error)
}

// MessageWriter records messages sent by the engine.
type MessageWriter interface {
	InsertMessage(ctx context.Context, leadID uuid.UUID, direction, body string) (Message, error)
}
