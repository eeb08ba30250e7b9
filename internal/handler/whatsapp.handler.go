package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"site-service/internal/domain"
	"site-service/internal/usecase"
	"site-service/pkg/response"

	"go.uber.org/zap"
)

// WhatsAppHandler serves POST /api/whatsapp/send. Callers authenticate with
// the shared API key, via X-API-Key or a Bearer token.
type WhatsAppHandler struct {
	uc     *usecase.WhatsAppUsecase
	apiKey string
	logger *zap.Logger
}

func NewWhatsAppHandler(uc *usecase.WhatsAppUsecase, apiKey string, logger *zap.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{uc: uc, apiKey: apiKey, logger: logger}
}

type whatsappSuccessResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

func (h *WhatsAppHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		response.Error(w, http.StatusServiceUnavailable, "whatsapp sending is not configured")
		return
	}
	if !h.authorized(r) {
		h.logger.Info("whatsapp send auth failed",
			zap.String("remote_addr", r.RemoteAddr))
		response.Error(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req domain.SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.logger.Info("failed to decode whatsapp request", zap.Error(err))
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msgID, err := h.uc.Send(r.Context(), &req)
	if err != nil {
		writeUsecaseError(w, h.logger, "whatsapp send failed", err)
		return
	}

	response.Raw(w, http.StatusOK, whatsappSuccessResponse{Success: true, MessageID: msgID})
}

func (h *WhatsAppHandler) authorized(r *http.Request) bool {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = bearerToken(r)
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) == 1
}
