package repository

import (
	"context"
	"fmt"
	"time"

	"site-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageLogRepository records WhatsApp dispatch outcomes.
type MessageLogRepository interface {
	LogMessage(ctx context.Context, m *domain.MessageLog) error
	RecentFailures(ctx context.Context, limit int) ([]*domain.MessageLog, error)
}

type pgMessageLogRepo struct {
	db *pgxpool.Pool
}

func NewMessageLogRepo(db *pgxpool.Pool) MessageLogRepository {
	return &pgMessageLogRepo{db: db}
}

func (r *pgMessageLogRepo) LogMessage(ctx context.Context, m *domain.MessageLog) error {
	query := `
		INSERT INTO message_logs (id, recipient, message_type, status, attempts, error, duration_ms, sent_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		m.ID, m.Recipient, m.Type, m.Status, m.Attempts, m.Error, m.Duration.Milliseconds(), m.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert message log %s: %w", m.ID, err)
	}
	return nil
}

func (r *pgMessageLogRepo) RecentFailures(ctx context.Context, limit int) ([]*domain.MessageLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, recipient, message_type, status, attempts, COALESCE(error, ''), duration_ms, sent_at
		FROM message_logs
		WHERE status = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, domain.MessageStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed messages: %w", err)
	}
	defer rows.Close()

	var logs []*domain.MessageLog
	for rows.Next() {
		var m domain.MessageLog
		var durationMS int64
		if err := rows.Scan(&m.ID, &m.Recipient, &m.Type, &m.Status, &m.Attempts, &m.Error, &durationMS, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message log row: %w", err)
		}
		m.Duration = time.Duration(durationMS) * time.Millisecond
		logs = append(logs, &m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return logs, nil
}
