package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"site-service/internal/domain"
	"site-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeadRepository aggregates lead persistence operations.
type LeadRepository interface {
	CreateLead(ctx context.Context, l *domain.Lead) error
	UpdateDispatchResult(ctx context.Context, id, status, emailMessageID, crmRecordID, dispatchErr string) error
	GetLeadByID(ctx context.Context, id string) (*domain.Lead, error)
	ListRecentLeads(ctx context.Context, limit int) ([]*domain.Lead, error)
	Stats(ctx context.Context) (*domain.LeadStats, error)
	Health(ctx context.Context) error
}

type pgLeadRepo struct {
	db *pgxpool.Pool
}

func NewLeadRepo(db *pgxpool.Pool) LeadRepository {
	return &pgLeadRepo{db: db}
}

func (r *pgLeadRepo) CreateLead(ctx context.Context, l *domain.Lead) error {
	query := `
		INSERT INTO leads (
			id, name, email, company, phone, message, locale, page,
			ip, country, user_agent, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		l.ID, l.Name, l.Email, l.Company, l.Phone, l.Message, l.Locale, l.Page,
		l.IP, l.Country, l.UserAgent, l.Status, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lead %s: %w", l.ID, err)
	}
	return nil
}

func (r *pgLeadRepo) UpdateDispatchResult(ctx context.Context, id, status, emailMessageID, crmRecordID, dispatchErr string) error {
	query := `
		UPDATE leads
		SET status = $2,
		    email_message_id = NULLIF($3, ''),
		    crm_record_id = NULLIF($4, ''),
		    dispatch_error = NULLIF($5, ''),
		    updated_at = now()
		WHERE id = $1
	`

	ct, err := r.db.Exec(ctx, query, id, status, emailMessageID, crmRecordID, dispatchErr)
	if err != nil {
		return fmt.Errorf("update lead %s dispatch result: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrLeadNotFound
	}
	return nil
}

func (r *pgLeadRepo) GetLeadByID(ctx context.Context, id string) (*domain.Lead, error) {
	query := `
		SELECT
			id, name, email,
			COALESCE(company, ''), COALESCE(phone, ''), message, locale, COALESCE(page, ''),
			COALESCE(ip, ''), COALESCE(country, ''), COALESCE(user_agent, ''),
			status, COALESCE(email_message_id, ''), COALESCE(crm_record_id, ''),
			COALESCE(dispatch_error, ''), created_at, updated_at
		FROM leads
		WHERE id = $1
	`

	var l domain.Lead
	err := r.db.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.Name, &l.Email,
		&l.Company, &l.Phone, &l.Message, &l.Locale, &l.Page,
		&l.IP, &l.Country, &l.UserAgent,
		&l.Status, &l.EmailMessageID, &l.CRMRecordID,
		&l.DispatchError, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrLeadNotFound
		}
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	return &l, nil
}

func (r *pgLeadRepo) ListRecentLeads(ctx context.Context, limit int) ([]*domain.Lead, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT
			id, name, email,
			COALESCE(company, ''), COALESCE(phone, ''), message, locale, COALESCE(page, ''),
			COALESCE(ip, ''), COALESCE(country, ''), COALESCE(user_agent, ''),
			status, COALESCE(email_message_id, ''), COALESCE(crm_record_id, ''),
			COALESCE(dispatch_error, ''), created_at, updated_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent leads: %w", err)
	}
	defer rows.Close()

	var leads []*domain.Lead
	for rows.Next() {
		var l domain.Lead
		err := rows.Scan(
			&l.ID, &l.Name, &l.Email,
			&l.Company, &l.Phone, &l.Message, &l.Locale, &l.Page,
			&l.IP, &l.Country, &l.UserAgent,
			&l.Status, &l.EmailMessageID, &l.CRMRecordID,
			&l.DispatchError, &l.CreatedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		leads = append(leads, &l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

func (r *pgLeadRepo) Stats(ctx context.Context) (*domain.LeadStats, error) {
	stats := &domain.LeadStats{
		ByStatus: map[string]int64{},
		ByLocale: map[string]int64{},
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at > now() - interval '24 hours'),
			COUNT(*) FILTER (WHERE created_at > now() - interval '7 days'),
			MAX(created_at)
		FROM leads
	`
	var latest *time.Time
	if err := r.db.QueryRow(ctx, query).Scan(&stats.Total, &stats.Last24h, &stats.Last7d, &latest); err != nil {
		return nil, fmt.Errorf("lead totals: %w", err)
	}
	stats.LatestAt = latest

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("leads by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	rows, err = r.db.Query(ctx, `SELECT locale, COUNT(*) FROM leads GROUP BY locale`)
	if err != nil {
		return nil, fmt.Errorf("leads by locale: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var loc string
		var n int64
		if err := rows.Scan(&loc, &n); err != nil {
			return nil, fmt.Errorf("scan locale count: %w", err)
		}
		stats.ByLocale[loc] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return stats, nil
}

func (r *pgLeadRepo) Health(ctx context.Context) error {
	return r.db.Ping(ctx)
}
