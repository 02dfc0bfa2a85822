package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	campaigns "leadpilot_backend/internal/campaigns/repository"
	leads "leadpilot_backend/internal/leads/repository"
)

// buildPayload produces the JSON body for a delivery. With a payload
// template configured on the source, {{field}} placeholders are substituted
// and the result JSON-decoded; a result that is not valid JSON is wrapped
// under a "data" key rather than rejected. Without a template the fixed
// field set is used, merged with any extra payload from the caller.
func (d *Dispatcher) buildPayload(ctx context.Context, lead leads.Lead, source campaigns.Source, extra map[string]any) ([]byte, error) {
	campaignName := ""
	if campaign, err := d.campaigns.GetCampaign(ctx, lead.CampaignID); err == nil {
		campaignName = campaign.Name
	}

	if template := source.ConfigValue("payload_template"); template != "" {
		rendered := renderPayloadTemplate(template, lead, campaignName)

		var decoded map[string]any
		if err := json.Unmarshal([]byte(rendered), &decoded); err != nil {
			return json.Marshal(map[string]any{"data": rendered})
		}
		return json.Marshal(decoded)
	}

	payload := map[string]any{
		"id":              lead.ID.String(),
		"phone":           lead.Phone,
		"name":            lead.Name,
		"city":            deref(lead.City),
		"option_selected": deref(lead.OptionSelected),
		"status":          string(lead.Status),
		"source":          deref(lead.Source),
		"intention":       deref(lead.Intention),
		"notes":           deref(lead.Notes),
		"campaign": map[string]any{
			"id":   lead.CampaignID.String(),
			"name": campaignName,
		},
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}

	for key, value := range extra {
		payload[key] = value
	}

	return json.Marshal(payload)
}

func renderPayloadTemplate(template string, lead leads.Lead, campaignName string) string {
	replacer := strings.NewReplacer(
		"{{id}}", lead.ID.String(),
		"{{phone}}", lead.Phone,
		"{{name}}", lead.Name,
		"{{city}}", deref(lead.City),
		"{{option_selected}}", deref(lead.OptionSelected),
		"{{status}}", string(lead.Status),
		"{{source}}", deref(lead.Source),
		"{{intention}}", deref(lead.Intention),
		"{{notes}}", deref(lead.Notes),
		"{{campaign_id}}", lead.CampaignID.String(),
		"{{campaign_name}}", campaignName,
		"{{sent_at}}", time.Now().UTC().Format(time.RFC3339),
	)
	return replacer.Replace(template)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
