// Package notifier delivers rendered notifications through the WhatsApp
// Business Cloud API.
//
// Messaging is template-based only; parameters arrive pre-masked from the
// pipeline and are passed through opaquely. Neither parameter values nor
// API error bodies beyond a short prefix are ever logged.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrForwardFailed indicates the outbound channel returned a non-2xx status
// or timed out. Delivery is reported, never retried inside the pipeline.
var ErrForwardFailed = errors.New("notification delivery failed")

const (
	graphAPIBase   = "https://graph.facebook.com/v18.0"
	sendTimeout    = 10 * time.Second
	probeTimeout   = 5 * time.Second
	maxLoggedError = 200
)

// Notifier is the outbound channel consumed by the pipeline.
type Notifier interface {
	// Send delivers a template message with ordered positional parameters
	// and returns the channel's message ID.
	Send(ctx context.Context, template string, params []string) (string, error)

	// HealthCheck reports whether the channel is configured and reachable.
	HealthCheck(ctx context.Context) bool
}

// WhatsAppClient implements Notifier against the WhatsApp Cloud API.
type WhatsAppClient struct {
	httpClient *http.Client
	logger     *slog.Logger

	baseURL   string
	token     string
	phoneID   string
	recipient string
}

// Config holds WhatsApp Cloud API settings.
type Config struct {
	APIToken      string
	PhoneNumberID string
	Recipient     string

	// BaseURL overrides the Graph API endpoint, for tests.
	BaseURL string
}

// NewWhatsAppClient creates a client with the standard timeouts.
func NewWhatsAppClient(cfg *Config, logger *slog.Logger) *WhatsAppClient {
	base := cfg.BaseURL
	if base == "" {
		base = graphAPIBase
	}
	return &WhatsAppClient{
		httpClient: &http.Client{Timeout: sendTimeout},
		logger:     logger,
		baseURL:    base,
		token:      cfg.APIToken,
		phoneID:    cfg.PhoneNumberID,
		recipient:  cfg.Recipient,
	}
}

// Cloud API request/response shapes.

type templatePayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateSpec `json:"template"`
}

type templateSpec struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string          `json:"type"`
	Parameters []templateParam `json:"parameters"`
}

type templateParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send posts a template message and returns the WhatsApp message ID.
func (c *WhatsAppClient) Send(ctx context.Context, template string, params []string) (string, error) {
	parameters := make([]templateParam, 0, len(params))
	for _, p := range params {
		parameters = append(parameters, templateParam{Type: "text", Text: p})
	}

	payload := templatePayload{
		MessagingProduct: "whatsapp",
		To:               c.recipient,
		Type:             "template",
		Template: templateSpec{
			Name:     template,
			Language: templateLanguage{Code: "en"},
			Components: []templateComponent{
				{Type: "body", Parameters: parameters},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling template payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("whatsapp send failed", "template", template, "error_type", fmt.Sprintf("%T", err))
		return "", ErrForwardFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Truncate the body so sensitive echo-back never reaches logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedError))
		c.logger.Error("whatsapp API error",
			"template", template,
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return "", ErrForwardFailed
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Messages) == 0 {
		c.logger.Error("whatsapp response malformed", "template", template)
		return "", ErrForwardFailed
	}

	c.logger.Info("whatsapp message sent", "template", template, "message_id", parsed.Messages[0].ID)
	return parsed.Messages[0].ID, nil
}

// HealthCheck probes the phone number resource with the configured token.
func (c *WhatsAppClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
