package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"site-service/internal/domain"
	"site-service/pkg/xerrors"

	"go.uber.org/zap"
)

// DefaultAPIBase is the Graph API root for the WhatsApp Cloud API.
const DefaultAPIBase = "https://graph.facebook.com/v19.0"

// Client sends messages through the WhatsApp Cloud API
// (POST {base}/{phone-number-id}/messages).
type Client struct {
	accessToken string
	phoneID     string
	baseURL     string
	httpClient  *http.Client
	logger      *zap.Logger
}

func New(accessToken, phoneID, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	return &Client{
		accessToken: accessToken,
		phoneID:     phoneID,
		baseURL:     baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Configured() bool {
	return c.accessToken != "" && c.phoneID != ""
}

// Cloud API wire shapes.

type message struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type templateBody struct {
	Name       string      `json:"name"`
	Language   langCode    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type langCode struct {
	Code string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// buildMessage maps the route request onto the Cloud API payload.
func buildMessage(req *domain.SendMessageRequest) *message {
	msg := &message{
		MessagingProduct: "whatsapp",
		To:               req.To,
		Type:             req.Type,
	}
	switch req.Type {
	case domain.MessageTypeText:
		msg.Text = &textBody{Body: req.Body}
	case domain.MessageTypeTemplate:
		msg.Template = &templateBody{
			Name:     req.Template.Name,
			Language: langCode{Code: req.TemplateLanguage()},
		}
		if len(req.Template.Params) > 0 {
			params := make([]parameter, 0, len(req.Template.Params))
			for _, p := range req.Template.Params {
				params = append(params, parameter{Type: "text", Text: p})
			}
			msg.Template.Components = []component{{Type: "body", Parameters: params}}
		}
	}
	return msg
}

// Send posts one message and returns the Cloud API message ID. Failures that
// are worth retrying are recognizable via IsRetryable.
func (c *Client) Send(ctx context.Context, req *domain.SendMessageRequest) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("whatsapp credentials not set: %w", xerrors.ErrServiceUnconfigured)
	}

	payload, err := json.Marshal(buildMessage(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal whatsapp payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("whatsapp request failed",
			zap.String("recipient", req.To),
			zap.Error(err))
		return "", fmt.Errorf("whatsapp request: %w: %v", xerrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var ae apiError
		_ = json.Unmarshal(body, &ae)
		c.logger.Error("whatsapp send failed",
			zap.String("recipient", req.To),
			zap.Int("status", resp.StatusCode),
			zap.Int("error_code", ae.Error.Code),
			zap.String("error_message", ae.Error.Message),
			zap.Duration("duration", duration))
		return "", mapStatus(resp.StatusCode, ae.Error.Message)
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse whatsapp response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("whatsapp response carried no message id: %w", xerrors.ErrSendFailed)
	}

	c.logger.Info("whatsapp message sent",
		zap.String("recipient", req.To),
		zap.String("message_id", out.Messages[0].ID),
		zap.String("type", req.Type),
		zap.Duration("duration", duration))

	return out.Messages[0].ID, nil
}

func mapStatus(status int, msg string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("whatsapp auth failed (%d %s): %w", status, msg, xerrors.ErrUpstreamAuth)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("whatsapp rate limited (%s): %w", msg, xerrors.ErrUpstreamRateLimited)
	case status >= 500:
		return fmt.Errorf("whatsapp unavailable (%d %s): %w", status, msg, xerrors.ErrUpstreamUnavailable)
	default:
		return fmt.Errorf("whatsapp rejected message (%d %s): %w", status, msg, xerrors.ErrSendFailed)
	}
}

// retryableFragments are API error messages that indicate a transient
// condition. Matched case-insensitively against the full error chain.
var retryableFragments = []string{
	"timeout",
	"timed out",
	"temporarily unavailable",
	"connection reset",
	"too many requests",
	"service unavailable",
	"rate limit",
}

// IsRetryable reports whether another attempt may succeed: upstream
// throttling and outages qualify, as do network timeouts and the narrow set
// of transient message fragments. Auth failures and rejected payloads do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, xerrors.ErrUpstreamRateLimited) || errors.Is(err, xerrors.ErrUpstreamUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
