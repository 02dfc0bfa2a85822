package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

type Message struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Direction string
	Body      string
	CreatedAt time.Time
}

// InsertMessage records a conversation message on the lead. The engine only
// writes outbound rows itself; inbound rows arrive through the CRM surface.
func (r *Repository) InsertMessage(ctx context.Context, leadID uuid.UUID, direction, body string) (Message, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO lead_messages (id, lead_id, direction, body, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, lead_id, direction, body, created_at
	`, uuid.New(), leadID, direction, body)

	var msg Message
	if err := row.Scan(&msg.ID, &msg.LeadID, &msg.Direction, &msg.Body, &msg.CreatedAt); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// LastOutboundMessage returns the most recent outbound message for the lead.
// The boolean is false when the lead has no outbound messages at all.
func (r *Repository) LastOutboundMessage(ctx context.Context, leadID uuid.UUID) (Message, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, direction, body, created_at
		FROM lead_messages
		WHERE lead_id = $1 AND direction = 'outbound'
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID)

	var msg Message
	err := row.Scan(&msg.ID, &msg.LeadID, &msg.Direction, &msg.Body, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

// HasInboundAfter reports whether the lead sent anything after the given time.
func (r *Repository) HasInboundAfter(ctx context.Context, leadID uuid.UUID, after time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lead_messages
			WHERE lead_id = $1 AND direction = 'inbound' AND created_at > $2
		)
	`, leadID, after).Scan(&exists)
	return exists, err
}

// ListRecentInbound returns up to limit inbound messages, oldest first, for
// the classifier's context window.
func (r *Repository) ListRecentInbound(ctx context.Context, leadID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, direction, body, created_at
		FROM (
			SELECT id, lead_id, direction, body, created_at
			FROM lead_messages
			WHERE lead_id = $1 AND direction = 'inbound'
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.LeadID, &msg.Direction, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
