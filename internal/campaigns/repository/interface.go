package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// CampaignReader provides read access to campaigns.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (Campaign, error)
}

// OptionReader resolves a campaign's configured option for a signal key.
type OptionReader interface {
	GetOption(ctx context.Context, campaignID uuid.UUID, key string) (Option, error)
}

// SourceReader provides read access to external destinations.
type SourceReader interface {
	GetSource(ctx context.Context, id uuid.UUID) (Source, error)
}

// AssignmentStore is everything the round-robin cursor needs.
type AssignmentStore interface {
	ListActiveAssignees(ctx context.Context, campaignID uuid.UUID) ([]Assignee, error)
	GetCursor(ctx context.Context, campaignID uuid.UUID) (Cursor, error)
	SaveCursor(ctx context.Context, campaignID uuid.UUID, index int, assignedAt time.Time) error
	ResetCursor(ctx context.Context, campaignID uuid.UUID) error
}
