package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"site-service/pkg/xerrors"

	"go.uber.org/zap"
)

// DefaultAPIBase is the Resend REST API root.
const DefaultAPIBase = "https://api.resend.com"

// Client sends transactional email through Resend.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(apiKey, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// SendRequest is the POST /emails payload.
type SendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send submits the email and returns the Resend message ID.
func (c *Client) Send(ctx context.Context, sr *SendRequest) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("resend api key not set: %w", xerrors.ErrServiceUnconfigured)
	}

	payload, err := json.Marshal(sr)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create resend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("resend request failed", zap.Error(err))
		return "", fmt.Errorf("resend request: %w: %v", xerrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		_ = json.Unmarshal(body, &ae)
		c.logger.Error("resend returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("error_name", ae.Name),
			zap.String("error_message", ae.Message))
		return "", mapStatus(resp.StatusCode, ae.Message)
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse resend response: %w", err)
	}

	c.logger.Info("email sent",
		zap.String("message_id", out.ID),
		zap.Strings("to", sr.To),
		zap.Duration("duration", time.Since(start)))

	return out.ID, nil
}

func mapStatus(status int, msg string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("resend auth failed (%d): %w", status, xerrors.ErrUpstreamAuth)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("resend rate limited: %w", xerrors.ErrUpstreamRateLimited)
	case status >= 500:
		return fmt.Errorf("resend unavailable (%d): %w", status, xerrors.ErrUpstreamUnavailable)
	default:
		return fmt.Errorf("resend rejected email (%d %s): %w", status, msg, xerrors.ErrSendFailed)
	}
}
