package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrOptionNotFound   = errors.New("option not found")
	ErrSourceNotFound   = errors.New("source not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Campaign struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Option is a campaign-scoped automation rule keyed by a signal key
// ("1", "2", "i", "t", "0"). Configuration only; the engine never writes it.
type Option struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	Key          string
	Action       string
	SourceID     *uuid.UUID
	Template     *string
	Message      *string
	DelayMinutes int
	Enabled      bool
}

// Source is an external destination: a webhook endpoint or a messaging
// instance, with a type-specific config bag. Immutable during a dispatch.
type Source struct {
	ID     uuid.UUID
	Type   string
	Name   string
	Config map[string]string
}

const (
	SourceTypeWebhook  = "webhook"
	SourceTypeWhatsApp = "whatsapp"
)

// ConfigValue returns a config field, empty string when absent.
func (s Source) ConfigValue(key string) string {
	if s.Config == nil {
		return ""
	}
	return s.Config[key]
}

func (r *Repository) GetCampaign(ctx context.Context, id uuid.UUID) (Campaign, error) {
	var c Campaign
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrCampaignNotFound
	}
	if err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// GetOption returns the campaign's option for the given signal key,
// enabled or not. Callers decide how to treat disabled rows.
func (r *Repository) GetOption(ctx context.Context, campaignID uuid.UUID, key string) (Option, error) {
	var opt Option
	err := r.pool.QueryRow(ctx, `
		SELECT id, campaign_id, option_key, action, source_id, template, message,
		       delay_minutes, enabled
		FROM campaign_options
		WHERE campaign_id = $1 AND option_key = $2
	`, campaignID, key).Scan(
		&opt.ID, &opt.CampaignID, &opt.Key, &opt.Action, &opt.SourceID,
		&opt.Template, &opt.Message, &opt.DelayMinutes, &opt.Enabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Option{}, ErrOptionNotFound
	}
	if err != nil {
		return Option{}, err
	}
	return opt, nil
}

func (r *Repository) GetSource(ctx context.Context, id uuid.UUID) (Source, error) {
	var src Source
	err := r.pool.QueryRow(ctx, `
		SELECT id, type, name, config FROM sources WHERE id = $1
	`, id).Scan(&src.ID, &src.Type, &src.Name, &src.Config)
	if errors.Is(err, pgx.ErrNoRows) {
		return Source{}, ErrSourceNotFound
	}
	if err != nil {
		return Source{}, err
	}
	return src, nil
}
