package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	campaigns "leadpilot_backend/internal/campaigns/repository"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
	"leadpilot_backend/platform/phone"
)

// Client sends messages through a gowa-compatible WhatsApp instance. The
// instance URL and credentials come from the messaging Source, so one
// client serves every campaign.
type Client struct {
	http *http.Client
	log  *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func NewClient(log *logger.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

// Send delivers body to phoneNumber through the instance configured on the
// source. Implements the message sender contract of the triggers package.
func (c *Client) Send(ctx context.Context, source campaigns.Source, phoneNumber string, body string) error {
	if source.Type != campaigns.SourceTypeWhatsApp {
		return apperr.Configuration(
			fmt.Sprintf("source %s has type %q, want %q", source.ID, source.Type, campaigns.SourceTypeWhatsApp))
	}

	baseURL := strings.TrimRight(strings.TrimSpace(source.ConfigValue("instance_url")), "/")
	if baseURL == "" {
		return apperr.Configuration(fmt.Sprintf("source %s has no instance_url configured", source.ID))
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	payload := gowaRequest{
		Phone:   normalized,
		Message: body,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey := source.ConfigValue("api_key"); apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(apiKey))
	}
	if deviceID := source.ConfigValue("device_id"); deviceID != "" {
		req.Header.Set("X-Device-Id", deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp instance returned %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	c.log.Info("whatsapp sent via gowa", "phone", normalized, "source_id", source.ID)
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
