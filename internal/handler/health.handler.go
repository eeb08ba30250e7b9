package handler

import (
	"context"
	"net/http"
	"time"

	"site-service/pkg/response"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HealthHandler probes the service's optional backends. Components that were
// never configured report "disabled" and don't degrade the status.
type HealthHandler struct {
	db     *pgxpool.Pool
	rdb    *redis.Client
	logger *zap.Logger
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, logger: logger}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	degraded := false

	if h.db == nil {
		checks["postgres"] = "disabled"
	} else if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health: postgres ping failed", zap.Error(err))
		checks["postgres"] = "down"
		degraded = true
	} else {
		checks["postgres"] = "ok"
	}

	if h.rdb == nil {
		checks["redis"] = "disabled"
	} else if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.logger.Warn("health: redis ping failed", zap.Error(err))
		checks["redis"] = "down"
		degraded = true
	} else {
		checks["redis"] = "ok"
	}

	status := "ok"
	code := http.StatusOK
	if degraded {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	response.Raw(w, code, healthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
