package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"site-service/pkg/xerrors"

	"go.uber.org/zap"
)

// DefaultAPIBase is the Airtable REST API root.
const DefaultAPIBase = "https://api.airtable.com"

// Client creates CRM records in an Airtable base.
type Client struct {
	apiKey     string
	baseID     string
	table      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(apiKey, baseID, table, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	return &Client{
		apiKey:  apiKey,
		baseID:  baseID,
		table:   table,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseID != "" && c.table != ""
}

type createRecordRequest struct {
	Fields map[string]interface{} `json:"fields"`
}

type createRecordResponse struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateRecord inserts one row and returns the Airtable record ID.
func (c *Client) CreateRecord(ctx context.Context, fields map[string]interface{}) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("airtable credentials not set: %w", xerrors.ErrServiceUnconfigured)
	}

	payload, err := json.Marshal(createRecordRequest{Fields: fields})
	if err != nil {
		return "", fmt.Errorf("failed to marshal airtable record: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v0/%s/%s", c.baseURL, c.baseID, url.PathEscape(c.table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create airtable request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("airtable request failed", zap.Error(err))
		return "", fmt.Errorf("airtable request: %w: %v", xerrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		_ = json.Unmarshal(body, &ae)
		c.logger.Error("airtable returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", ae.Error.Type),
			zap.String("error_message", ae.Error.Message))
		return "", mapStatus(resp.StatusCode, ae.Error.Type)
	}

	var out createRecordResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse airtable response: %w", err)
	}

	c.logger.Info("crm record created",
		zap.String("record_id", out.ID),
		zap.String("table", c.table),
		zap.Duration("duration", time.Since(start)))

	return out.ID, nil
}

func mapStatus(status int, errType string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("airtable auth failed (%d): %w", status, xerrors.ErrUpstreamAuth)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("airtable rate limited: %w", xerrors.ErrUpstreamRateLimited)
	case status >= 500:
		return fmt.Errorf("airtable unavailable (%d): %w", status, xerrors.ErrUpstreamUnavailable)
	default:
		return fmt.Errorf("airtable rejected record (%d %s): %w", status, errType, xerrors.ErrSendFailed)
	}
}
