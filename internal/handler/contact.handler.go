package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"site-service/internal/clientip"
	"site-service/internal/domain"
	"site-service/internal/usecase"
	"site-service/pkg/response"
	"site-service/pkg/xerrors"

	"go.uber.org/zap"
)

// ContactHandler serves POST /api/contact (form submissions) and
// GET /api/contact (admin stats).
type ContactHandler struct {
	uc         *usecase.LeadUsecase
	adminToken string
	logger     *zap.Logger
}

func NewContactHandler(uc *usecase.LeadUsecase, adminToken string, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{uc: uc, adminToken: adminToken, logger: logger}
}

type contactSuccessResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	RecordID  string `json:"recordId,omitempty"`
}

// SubmitContact runs the lead pipeline for one form submission.
func (h *ContactHandler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ContactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.logger.Info("failed to decode contact request", zap.Error(err))
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	meta := usecase.RequestMeta{
		IP:        clientip.FromContext(ctx),
		UserAgent: r.UserAgent(),
	}

	result, err := h.uc.ProcessContact(ctx, &req, meta)
	if err != nil {
		writeUsecaseError(w, h.logger, "contact submission failed", err)
		return
	}

	response.Raw(w, http.StatusOK, contactSuccessResponse{
		Success:   true,
		MessageID: result.EmailMessageID,
		RecordID:  result.CRMRecordID,
	})
}

// GetStats returns lead statistics for the admin dashboard. Requires the
// Bearer token from ADMIN_API_TOKEN; without a configured token the endpoint
// stays disabled rather than open.
func (h *ContactHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.adminToken == "" {
		response.Error(w, http.StatusServiceUnavailable, "admin stats are not configured")
		return
	}

	token := bearerToken(r)
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		h.logger.Info("admin stats auth failed",
			zap.String("ip", clientip.FromContext(r.Context())))
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.uc.Stats(r.Context())
	if err != nil {
		writeUsecaseError(w, h.logger, "lead stats failed", err)
		return
	}

	response.Raw(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{true, stats})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// writeUsecaseError maps pipeline errors onto the sanitized response bodies.
// Field-level detail goes out for validation failures only.
func writeUsecaseError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	var ve *xerrors.ValidationError
	if errors.As(err, &ve) {
		response.FieldErrors(w, "validation failed", ve.Fields)
		return
	}

	var rl *xerrors.RateLimitError
	if errors.As(err, &rl) {
		response.TooManyRequests(w, rl.RetryAfter, "too many requests, please try again later")
		return
	}

	status := xerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		response.Error(w, status, "something went wrong, please try again later")
		return
	}

	logger.Info(msg, zap.Error(err))
	response.Error(w, status, publicMessage(err, status))
}

// publicMessage keeps client-facing text stable for the statuses the site's
// frontend switches on.
func publicMessage(err error, status int) string {
	switch {
	case errors.Is(err, xerrors.ErrCaptchaFailed):
		return "captcha verification failed"
	case errors.Is(err, xerrors.ErrTimingRejected):
		return "submission rejected, please reload the form and try again"
	case errors.Is(err, xerrors.ErrServiceUnconfigured):
		return "service temporarily unavailable"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status == http.StatusNotFound:
		return "not found"
	default:
		return "request rejected"
	}
}
