// Package classifier provides a client for the intention classification API.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is an HTTP client for the intention classification service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config configures the intention classifier client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a new intention classifier client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Messages []string `json:"messages"`
	Context  string   `json:"context,omitempty"`
}

type classifyResponse struct {
	Intention  string  `json:"intention"`
	Confidence float64 `json:"confidence"`
}

// Classify maps the lead's recent inbound messages to an intention label.
// An empty label means the service could not decide; callers treat that as
// "no decision yet", not as an error.
func (c *Client) Classify(ctx context.Context, messages []string, campaignContext string) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	bodyBytes, err := json.Marshal(classifyRequest{
		Messages: messages,
		Context:  campaignContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal classify request: %w", err)
	}

	url := c.baseURL + "/v1/classify"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create classify request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("classify request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read classify response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded classifyResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode classify response: %w", err)
	}

	return strings.TrimSpace(decoded.Intention), nil
}
