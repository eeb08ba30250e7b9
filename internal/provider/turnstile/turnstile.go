package turnstile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"site-service/pkg/xerrors"

	"go.uber.org/zap"
)

// DefaultVerifyURL is Cloudflare's siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Client verifies Turnstile challenge tokens submitted with the contact form.
type Client struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(secret, verifyURL string, logger *zap.Logger) *Client {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Client{
		secret:    secret,
		verifyURL: verifyURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Configured reports whether a secret key is present. Without one,
// verification is skipped so local development works without Cloudflare.
func (c *Client) Configured() bool {
	return c.secret != ""
}

type verifyResponse struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verify checks the token against the siteverify API. A failed challenge
// wraps ErrCaptchaFailed; transport problems are surfaced as upstream errors.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) error {
	if !c.Configured() {
		c.logger.Warn("turnstile secret not configured, skipping verification")
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("missing turnstile token: %w", xerrors.ErrCaptchaFailed)
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create turnstile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("turnstile request failed", zap.Error(err))
		return fmt.Errorf("turnstile request: %w: %v", xerrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("turnstile returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(body)))
		return fmt.Errorf("turnstile returned status %d: %w", resp.StatusCode, xerrors.ErrUpstreamUnavailable)
	}

	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to parse turnstile response: %w", err)
	}

	if !out.Success {
		c.logger.Info("turnstile rejected token",
			zap.Strings("error_codes", out.ErrorCodes),
			zap.String("remote_ip", remoteIP))
		return fmt.Errorf("turnstile rejected token (%s): %w", strings.Join(out.ErrorCodes, ","), xerrors.ErrCaptchaFailed)
	}

	return nil
}
