package usecase

import (
	"context"

	"site-service/internal/domain"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var cspReportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "csp_reports_total",
		Help: "CSP violation reports by severity",
	},
	[]string{"severity"},
)

// CSPUsecase turns browser violation reports into structured log lines and
// counters. Reports are never stored or echoed back.
type CSPUsecase struct {
	logger *zap.Logger
}

func NewCSPUsecase(logger *zap.Logger) *CSPUsecase {
	return &CSPUsecase{logger: logger}
}

// Ingest validates and records one report, returning its correlation ID.
func (uc *CSPUsecase) Ingest(_ context.Context, report *domain.CSPReport, meta RequestMeta) (string, error) {
	if err := report.Validate(); err != nil {
		return "", err
	}

	severity := report.Severity()
	reportID := uuid.NewString()

	fields := []zap.Field{
		zap.String("report_id", reportID),
		zap.String("severity", severity),
		zap.String("directive", report.Directive()),
		zap.String("violated_directive", report.ViolatedDirective),
		zap.String("document_uri", report.DocumentURI),
		zap.String("blocked_uri", report.BlockedURI),
		zap.String("source_file", report.SourceFile),
		zap.Int("line", report.LineNumber),
		zap.Int("column", report.ColumnNumber),
		zap.String("disposition", report.Disposition),
		zap.String("client_ip", meta.IP),
		zap.String("user_agent", meta.UserAgent),
	}

	switch severity {
	case domain.CSPSeverityHigh:
		uc.logger.Error("csp violation", fields...)
	case domain.CSPSeverityMedium:
		uc.logger.Warn("csp violation", fields...)
	default:
		uc.logger.Info("csp violation", fields...)
	}

	cspReportsTotal.WithLabelValues(severity).Inc()
	return reportID, nil
}
