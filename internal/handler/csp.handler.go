package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"site-service/internal/clientip"
	"site-service/internal/domain"
	"site-service/internal/usecase"
	"site-service/pkg/response"

	"go.uber.org/zap"
)

// maxReportBytes caps violation report bodies. Real reports are well under
// a kilobyte; anything bigger is abuse.
const maxReportBytes = 64 << 10

// CSPHandler receives browser Content-Security-Policy violation reports.
type CSPHandler struct {
	uc     *usecase.CSPUsecase
	logger *zap.Logger
}

func NewCSPHandler(uc *usecase.CSPUsecase, logger *zap.Logger) *CSPHandler {
	return &CSPHandler{uc: uc, logger: logger}
}

type cspReceivedResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReceiveReport accepts application/csp-report (what browsers send) and
// application/json (manual reporters). The report body is logged, never
// echoed back.
func (h *CSPHandler) ReceiveReport(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || (mediaType != "application/csp-report" && mediaType != "application/json") {
		response.Error(w, http.StatusBadRequest, "content type must be application/csp-report or application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "report too large")
			return
		}
		h.logger.Info("failed to read csp report body", zap.Error(err))
		response.Error(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	var envelope domain.CSPReportEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid report json")
		return
	}
	if envelope.Report == nil {
		response.Error(w, http.StatusBadRequest, "missing csp-report field")
		return
	}

	meta := usecase.RequestMeta{
		IP:        clientip.FromContext(r.Context()),
		UserAgent: r.UserAgent(),
	}
	if _, err := h.uc.Ingest(r.Context(), envelope.Report, meta); err != nil {
		writeUsecaseError(w, h.logger, "csp report rejected", err)
		return
	}

	response.Raw(w, http.StatusOK, cspReceivedResponse{
		Status:    "received",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Health answers the report endpoint's GET health check.
func (h *CSPHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Raw(w, http.StatusOK, cspReceivedResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
