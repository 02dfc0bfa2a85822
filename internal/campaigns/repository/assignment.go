package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Assignee is an active sales user in a campaign's rotation pool.
type Assignee struct {
	UserID    uuid.UUID
	SortOrder int
	CreatedAt time.Time
}

// Cursor is the per-campaign round-robin position. A campaign with no
// cursor row yet behaves as CurrentIndex = -1 so the first advance lands
// on index 0.
type Cursor struct {
	CampaignID     uuid.UUID
	CurrentIndex   int
	LastAssignedAt *time.Time
}

// ListActiveAssignees returns the campaign's rotation pool, ordered by
// explicit sort order then creation time.
func (r *Repository) ListActiveAssignees(ctx context.Context, campaignID uuid.UUID) ([]Assignee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, sort_order, created_at
		FROM campaign_assignees
		WHERE campaign_id = $1 AND is_active = true
		ORDER BY sort_order ASC, created_at ASC
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignees := make([]Assignee, 0)
	for rows.Next() {
		var a Assignee
		if err := rows.Scan(&a.UserID, &a.SortOrder, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignees = append(assignees, a)
	}

	return assignees, rows.Err()
}

func (r *Repository) GetCursor(ctx context.Context, campaignID uuid.UUID) (Cursor, error) {
	var c Cursor
	err := r.pool.QueryRow(ctx, `
		SELECT campaign_id, current_index, last_assigned_at
		FROM assignment_cursors
		WHERE campaign_id = $1
	`, campaignID).Scan(&c.CampaignID, &c.CurrentIndex, &c.LastAssignedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cursor{CampaignID: campaignID, CurrentIndex: -1}, nil
	}
	if err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// SaveCursor persists the rotation position. Read-then-write under the
// store's normal isolation; a rare duplicate assignment under contention
// is tolerated.
func (r *Repository) SaveCursor(ctx context.Context, campaignID uuid.UUID, index int, assignedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assignment_cursors (campaign_id, current_index, last_assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id)
		DO UPDATE SET current_index = $2, last_assigned_at = $3
	`, campaignID, index, assignedAt)
	return err
}

// ResetCursor rewinds the rotation so the next advance lands on the first
// assignee, used when the assignee list changes materially. -1 mirrors the
// missing-row default.
func (r *Repository) ResetCursor(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assignment_cursors (campaign_id, current_index, last_assigned_at)
		VALUES ($1, -1, NULL)
		ON CONFLICT (campaign_id)
		DO UPDATE SET current_index = -1
	`, campaignID)
	return err
}
