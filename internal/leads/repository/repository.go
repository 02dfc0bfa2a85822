package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leadpilot_backend/internal/leads/domain"
	"leadpilot_backend/platform/phone"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID               uuid.UUID
	CampaignID       uuid.UUID
	Phone            string
	Name             string
	City             *string
	Notes            *string
	Source           *string
	Status           domain.Status
	AutomationStatus domain.AutomationStatus
	IntentionStatus  domain.IntentionStatus
	Intention        *string
	OptionSelected   *string
	AssigneeID       *uuid.UUID
	AssignmentError  *string
	WebhookSent      bool
	WebhookResult    json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Stage derives the lead's current lifecycle stage from its sub-states.
func (l Lead) Stage() domain.Stage {
	intention := ""
	if l.Intention != nil {
		intention = *l.Intention
	}
	return domain.DeriveStage(domain.StageInput{
		Status:           l.Status,
		AutomationStatus: l.AutomationStatus,
		IntentionStatus:  l.IntentionStatus,
		Intention:        intention,
	})
}

const leadColumns = `
	id, campaign_id, phone, name, city, notes, source,
	status, automation_status, COALESCE(intention_status, ''), intention,
	option_selected, assignee_id, assignment_error,
	webhook_sent, webhook_result, created_at, updated_at
`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.CampaignID, &lead.Phone, &lead.Name, &lead.City, &lead.Notes, &lead.Source,
		&lead.Status, &lead.AutomationStatus, &lead.IntentionStatus, &lead.Intention,
		&lead.OptionSelected, &lead.AssigneeID, &lead.AssignmentError,
		&lead.WebhookSent, &lead.WebhookResult, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

func (r *Repository) GetByPhone(ctx context.Context, rawPhone string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE phone = $1`,
		phone.NormalizeE164(rawPhone))
	return scanLead(row)
}

// UpdateAutomationStatus performs a field-scoped update of automation_status.
func (r *Repository) UpdateAutomationStatus(ctx context.Context, id uuid.UUID, status domain.AutomationStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET automation_status = $2, updated_at = now()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkIntentionPending opens the intention classification window on a lead.
// A lead whose intention is already finalized is left untouched.
func (r *Repository) MarkIntentionPending(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET intention_status = 'pending', updated_at = now()
		WHERE id = $1
		  AND (intention_status IS NULL OR intention_status NOT IN ('finalized', 'sent_to_client'))
	`, id)
	return err
}

// FinalizeIntention records a classified intention. The guard on
// intention_status makes concurrent finalizations first-writer-wins; the
// boolean reports whether this call did the transition.
func (r *Repository) FinalizeIntention(ctx context.Context, id uuid.UUID, intention string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET intention = $2, intention_status = 'finalized', updated_at = now()
		WHERE id = $1
		  AND (intention_status IS NULL OR intention_status = 'pending')
	`, id, intention)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireLead is the sweep's terminal transition: no_response intention,
// finalized, and the lead itself marked invalid. Only pending-intention
// leads match, so running the sweep twice is a no-op the second time.
func (r *Repository) ExpireLead(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET intention = 'no_response', intention_status = 'finalized',
		    status = 'invalid', updated_at = now()
		WHERE id = $1 AND intention_status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetAssignee(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET assignee_id = $2, assignment_error = NULL, updated_at = now()
		WHERE id = $1
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAssignmentError surfaces an assignment failure on the lead record for
// manual retry; it is not auto-retried.
func (r *Repository) SetAssignmentError(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET assignment_error = $2, updated_at = now()
		WHERE id = $1
	`, id, message)
	return err
}

// SetWebhookResult overwrites the lead's delivery outcome. Every attempt
// writes here, success or failure, so operators always see the last outcome.
func (r *Repository) SetWebhookResult(ctx context.Context, id uuid.UUID, sent bool, result json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET webhook_sent = $2, webhook_result = $3, updated_at = now()
		WHERE id = $1
	`, id, sent, result)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingIntention returns leads the sweep should consider: intention
// still pending and automation not manually paused.
func (r *Repository) ListPendingIntention(ctx context.Context, limit int) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE intention_status = 'pending' AND automation_status <> 'skipped'
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}
