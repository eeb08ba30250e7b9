package usecase

import (
	"context"
	"fmt"
	"time"

	"site-service/internal/domain"
	"site-service/internal/provider/whatsapp"
	"site-service/internal/rate"
	"site-service/internal/repository"
	"site-service/pkg/id"
	"site-service/pkg/xerrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	whatsappSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_send_total",
			Help: "WhatsApp sends by message type and outcome",
		},
		[]string{"type", "status"},
	)

	whatsappSendAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whatsapp_send_attempts",
			Help:    "Attempts used per WhatsApp send",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)

// MessageSender is the WhatsApp provider surface the usecase needs.
type MessageSender interface {
	Configured() bool
	Send(ctx context.Context, req *domain.SendMessageRequest) (string, error)
}

// WhatsAppConfig tunes the retry loop and recipient rate limit.
type WhatsAppConfig struct {
	MaxAttempts    int
	RetryDelays    []time.Duration
	RecipientLimit rate.Limit
}

// WhatsAppUsecase sends one message with bounded retries. Only failures the
// provider classifies as transient are retried; each send sequence produces
// exactly one message log row.
type WhatsAppUsecase struct {
	sender  MessageSender
	logs    repository.MessageLogRepository
	limiter *rate.Limiter
	cfg     WhatsAppConfig
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewWhatsAppUsecase(
	sender MessageSender,
	logs repository.MessageLogRepository,
	limiter *rate.Limiter,
	cfg WhatsAppConfig,
	logger *zap.Logger,
) *WhatsAppUsecase {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{time.Second, 2 * time.Second}
	}
	return &WhatsAppUsecase{
		sender:  sender,
		logs:    logs,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Send validates, rate-checks the recipient, then runs the attempt loop.
// Returns the provider message ID on success.
func (uc *WhatsAppUsecase) Send(ctx context.Context, req *domain.SendMessageRequest) (string, error) {
	if err := req.Validate(); err != nil {
		whatsappSendTotal.WithLabelValues(req.Type, "rejected").Inc()
		return "", err
	}

	if !uc.sender.Configured() {
		uc.logger.Warn("whatsapp send requested but provider not configured")
		whatsappSendTotal.WithLabelValues(req.Type, "unconfigured").Inc()
		return "", fmt.Errorf("whatsapp provider: %w", xerrors.ErrServiceUnconfigured)
	}

	// Per-recipient throttle; the router limits per client IP.
	if allowed, retryAfter := uc.limiter.Allow(ctx, "whatsapp-recipient", req.To, uc.cfg.RecipientLimit); !allowed {
		whatsappSendTotal.WithLabelValues(req.Type, "rate_limited").Inc()
		return "", &xerrors.RateLimitError{RetryAfter: retryAfter}
	}

	start := time.Now()
	var (
		msgID    string
		lastErr  error
		attempts int
	)

	for attempts < uc.cfg.MaxAttempts {
		attempts++
		msgID, lastErr = uc.sender.Send(ctx, req)
		if lastErr == nil {
			break
		}
		if !whatsapp.IsRetryable(lastErr) || attempts >= uc.cfg.MaxAttempts {
			break
		}

		delay := uc.delayFor(attempts)
		uc.logger.Warn("whatsapp send failed, retrying",
			zap.String("recipient", req.To),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		if err := uc.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("retry wait aborted: %w", err)
			break
		}
	}

	duration := time.Since(start)
	whatsappSendAttempts.Observe(float64(attempts))
	uc.logMessage(ctx, req, lastErr, attempts, duration)

	if lastErr != nil {
		whatsappSendTotal.WithLabelValues(req.Type, "failed").Inc()
		return "", fmt.Errorf("whatsapp send to %s after %d attempts: %w", req.To, attempts, lastErr)
	}

	uc.logger.Info("whatsapp message delivered",
		zap.String("recipient", req.To),
		zap.String("message_id", msgID),
		zap.String("type", req.Type),
		zap.Int("attempts", attempts),
		zap.Duration("duration", duration))
	whatsappSendTotal.WithLabelValues(req.Type, "sent").Inc()
	return msgID, nil
}

// RecentFailures lists the latest failed sends for operators.
func (uc *WhatsAppUsecase) RecentFailures(ctx context.Context, limit int) ([]*domain.MessageLog, error) {
	if uc.logs == nil {
		return nil, fmt.Errorf("message log storage disabled: %w", xerrors.ErrServiceUnconfigured)
	}
	return uc.logs.RecentFailures(ctx, limit)
}

// delayFor returns the wait before the next attempt; the last configured
// delay repeats when attempts outnumber delays.
func (uc *WhatsAppUsecase) delayFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(uc.cfg.RetryDelays) {
		idx = len(uc.cfg.RetryDelays) - 1
	}
	return uc.cfg.RetryDelays[idx]
}

func (uc *WhatsAppUsecase) logMessage(ctx context.Context, req *domain.SendMessageRequest, sendErr error, attempts int, duration time.Duration) {
	if uc.logs == nil {
		return
	}

	entry := &domain.MessageLog{
		ID:        id.Generate(id.PrefixMessage),
		Recipient: req.To,
		Type:      req.Type,
		Status:    domain.MessageStatusSent,
		Attempts:  attempts,
		Duration:  duration,
		SentAt:    time.Now().UTC(),
	}
	if sendErr != nil {
		entry.Status = domain.MessageStatusFailed
		entry.Error = sendErr.Error()
	}

	if err := uc.logs.LogMessage(ctx, entry); err != nil {
		uc.logger.Error("failed to write message log",
			zap.String("recipient", req.To),
			zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
