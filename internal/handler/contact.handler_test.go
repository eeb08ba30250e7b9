package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"site-service/internal/domain"
	"site-service/internal/events"
	"site-service/internal/provider/resend"
	"site-service/internal/rate"
	"site-service/internal/usecase"
	"site-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Provider stubs shared by the handler tests.

type okCaptcha struct{ err error }

func (c *okCaptcha) Configured() bool { return true }
func (c *okCaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	return c.err
}

type okEmail struct{ id string }

func (e *okEmail) Configured() bool { return true }
func (e *okEmail) Send(ctx context.Context, sr *resend.SendRequest) (string, error) {
	return e.id, nil
}

type okCRM struct{ id string }

func (c *okCRM) Configured() bool { return true }
func (c *okCRM) CreateRecord(ctx context.Context, fields map[string]interface{}) (string, error) {
	return c.id, nil
}

// statsRepo serves canned stats; writes are accepted and dropped.
type statsRepo struct{ stats domain.LeadStats }

func (s *statsRepo) CreateLead(ctx context.Context, l *domain.Lead) error { return nil }
func (s *statsRepo) UpdateDispatchResult(ctx context.Context, id, status, emailMessageID, crmRecordID, dispatchErr string) error {
	return nil
}
func (s *statsRepo) GetLeadByID(ctx context.Context, id string) (*domain.Lead, error) {
	return nil, xerrors.ErrLeadNotFound
}
func (s *statsRepo) ListRecentLeads(ctx context.Context, limit int) ([]*domain.Lead, error) {
	return nil, nil
}
func (s *statsRepo) Stats(ctx context.Context) (*domain.LeadStats, error) { return &s.stats, nil }
func (s *statsRepo) Health(ctx context.Context) error                     { return nil }

func newContactHandler(t *testing.T, adminToken string) *ContactHandler {
	t.Helper()
	uc := usecase.NewLeadUsecase(
		&statsRepo{stats: domain.LeadStats{Total: 42, ByStatus: map[string]int64{"delivered": 40}}},
		&okCaptcha{},
		&okEmail{id: "re_123"},
		&okCRM{id: "recAbc"},
		rate.NewLimiter(nil, zap.NewNop()),
		nil,
		events.NewPublisher(nil, "", zap.NewNop()),
		usecase.LeadConfig{
			FormMinFillTime: 3 * time.Second,
			FormMaxAge:      24 * time.Hour,
			ContactFrom:     "Site <noreply@example.com>",
			ContactTo:       []string{"sales@example.com"},
		},
		zap.NewNop(),
	)
	return NewContactHandler(uc, adminToken, zap.NewNop())
}

func contactBody(t *testing.T, mutate func(map[string]interface{})) string {
	t.Helper()
	m := map[string]interface{}{
		"name":           "Ada Lovelace",
		"email":          "ada@example.com",
		"message":        "We would like a quote for the enterprise plan.",
		"locale":         "en",
		"page":           "/pricing",
		"turnstileToken": "tok-abc",
		"formStartedAt":  time.Now().Add(-time.Minute).UnixMilli(),
	}
	if mutate != nil {
		mutate(m)
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return string(b)
}

func TestSubmitContact_Success(t *testing.T) {
	h := newContactHandler(t, "")

	r := httptest.NewRequest("POST", "/api/contact", strings.NewReader(contactBody(t, nil)))
	w := httptest.NewRecorder()
	h.SubmitContact(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Success   bool   `json:"success"`
		MessageID string `json:"messageId"`
		RecordID  string `json:"recordId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "re_123", resp.MessageID)
	assert.Equal(t, "recAbc", resp.RecordID)
}

func TestSubmitContact_MalformedJSON(t *testing.T) {
	h := newContactHandler(t, "")

	r := httptest.NewRequest("POST", "/api/contact", strings.NewReader(`{"name":`))
	w := httptest.NewRecorder()
	h.SubmitContact(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"invalid request body"}`, w.Body.String())
}

func TestSubmitContact_ValidationErrors(t *testing.T) {
	h := newContactHandler(t, "")

	body := contactBody(t, func(m map[string]interface{}) {
		m["email"] = "nope"
		m["message"] = "short"
	})
	r := httptest.NewRequest("POST", "/api/contact", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.SubmitContact(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Errors, "email")
	assert.Contains(t, resp.Errors, "message")
}

func TestSubmitContact_CaptchaFailed(t *testing.T) {
	h := newContactHandler(t, "")
	// Reach into the pipeline: swap the verifier for a failing one.
	h.uc = usecase.NewLeadUsecase(
		nil,
		&okCaptcha{err: xerrors.ErrCaptchaFailed},
		&okEmail{id: "re_123"},
		&okCRM{id: "recAbc"},
		rate.NewLimiter(nil, zap.NewNop()),
		nil,
		events.NewPublisher(nil, "", zap.NewNop()),
		usecase.LeadConfig{FormMinFillTime: 3 * time.Second, FormMaxAge: 24 * time.Hour},
		zap.NewNop(),
	)

	r := httptest.NewRequest("POST", "/api/contact", strings.NewReader(contactBody(t, nil)))
	w := httptest.NewRecorder()
	h.SubmitContact(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"captcha verification failed"}`, w.Body.String())
}

func TestSubmitContact_HoneypotGetsSuccessShape(t *testing.T) {
	h := newContactHandler(t, "")

	body := contactBody(t, func(m map[string]interface{}) {
		m["website"] = "http://bot.example"
	})
	r := httptest.NewRequest("POST", "/api/contact", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.SubmitContact(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	// Empty IDs are omitted; bots see a plain success.
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestGetStats_NotConfigured(t *testing.T) {
	h := newContactHandler(t, "")

	r := httptest.NewRequest("GET", "/api/contact", nil)
	w := httptest.NewRecorder()
	h.GetStats(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetStats_Unauthorized(t *testing.T) {
	h := newContactHandler(t, "secret-token")

	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no header", func(r *http.Request) {}},
		{"wrong token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") }},
		{"not bearer", func(r *http.Request) { r.Header.Set("Authorization", "Basic secret-token") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/contact", nil)
			tt.setup(r)
			w := httptest.NewRecorder()
			h.GetStats(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestGetStats_Success(t *testing.T) {
	h := newContactHandler(t, "secret-token")

	r := httptest.NewRequest("GET", "/api/contact", nil)
	r.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	h.GetStats(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Total    int64            `json:"total"`
			ByStatus map[string]int64 `json:"by_status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(42), resp.Data.Total)
	assert.Equal(t, int64(40), resp.Data.ByStatus["delivered"])
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r))

	r.Header.Set("Authorization", "bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r), "scheme comparison is case-insensitive")

	r.Header.Set("Authorization", "Basic abc123")
	assert.Equal(t, "", bearerToken(r))

	r.Header.Set("Authorization", "Bearer")
	assert.Equal(t, "", bearerToken(r))
}
