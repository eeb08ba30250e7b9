package usecase

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"site-service/internal/domain"
	"site-service/internal/events"
	"site-service/internal/geo"
	"site-service/internal/provider/resend"
	"site-service/internal/rate"
	"site-service/internal/repository"
	"site-service/pkg/id"
	"site-service/pkg/xerrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics
var (
	leadsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_processed_total",
			Help: "Contact submissions by pipeline stage and outcome",
		},
		[]string{"stage", "status"},
	)

	leadPipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_pipeline_duration_seconds",
			Help:    "End-to-end contact pipeline duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	leadDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_dispatch_total",
			Help: "Outbound dispatch attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)
)

// CaptchaVerifier checks the bot-challenge token that came with the form.
type CaptchaVerifier interface {
	Configured() bool
	Verify(ctx context.Context, token, remoteIP string) error
}

// EmailSender delivers the lead notification email.
type EmailSender interface {
	Configured() bool
	Send(ctx context.Context, sr *resend.SendRequest) (string, error)
}

// CRMClient files the lead as a CRM record.
type CRMClient interface {
	Configured() bool
	CreateRecord(ctx context.Context, fields map[string]interface{}) (string, error)
}

// RequestMeta carries the per-request context the pipeline records.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// ContactResult is what the route returns on success. IDs are present for
// whichever channels succeeded.
type ContactResult struct {
	LeadID         string
	EmailMessageID string
	CRMRecordID    string
}

// LeadConfig tunes the pipeline.
type LeadConfig struct {
	FormMinFillTime time.Duration
	FormMaxAge      time.Duration

	EmailRateLimit rate.Limit

	ContactFrom          string
	ContactTo            []string
	ContactSubjectPrefix string
}

// LeadUsecase runs the contact intake pipeline: honeypot, validation, timing
// window, captcha, rate limit, persistence, then concurrent email + CRM
// dispatch where one success is enough.
type LeadUsecase struct {
	repo      repository.LeadRepository
	captcha   CaptchaVerifier
	email     EmailSender
	crm       CRMClient
	limiter   *rate.Limiter
	geo       geo.Resolver
	publisher *events.Publisher
	cfg       LeadConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewLeadUsecase(
	repo repository.LeadRepository,
	captcha CaptchaVerifier,
	email EmailSender,
	crm CRMClient,
	limiter *rate.Limiter,
	geoResolver geo.Resolver,
	publisher *events.Publisher,
	cfg LeadConfig,
	logger *zap.Logger,
) *LeadUsecase {
	return &LeadUsecase{
		repo:      repo,
		captcha:   captcha,
		email:     email,
		crm:       crm,
		limiter:   limiter,
		geo:       geoResolver,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessContact handles one POST /api/contact submission.
func (uc *LeadUsecase) ProcessContact(ctx context.Context, req *domain.ContactRequest, meta RequestMeta) (*ContactResult, error) {
	start := uc.now()
	outcome := "error"
	defer func() {
		leadPipelineDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	// Honeypot submissions get the success shape so bots learn nothing,
	// but never reach the providers.
	if req.IsHoneypot() {
		uc.recordSpam(ctx, req, meta)
		leadsProcessed.WithLabelValues("honeypot", "spam").Inc()
		outcome = "spam"
		return &ContactResult{}, nil
	}

	if err := req.Validate(); err != nil {
		leadsProcessed.WithLabelValues("validate", "rejected").Inc()
		outcome = "invalid"
		return nil, err
	}

	if err := req.CheckTiming(uc.now(), uc.cfg.FormMinFillTime, uc.cfg.FormMaxAge); err != nil {
		uc.logger.Info("contact submission failed timing check",
			zap.String("ip", meta.IP),
			zap.Error(err))
		leadsProcessed.WithLabelValues("timing", "rejected").Inc()
		outcome = "invalid"
		return nil, err
	}

	if err := uc.captcha.Verify(ctx, req.TurnstileToken, meta.IP); err != nil {
		leadsProcessed.WithLabelValues("captcha", "rejected").Inc()
		outcome = "invalid"
		return nil, err
	}

	// Secondary limit per email address; the router already limits per IP.
	emailKey := strings.ToLower(strings.TrimSpace(req.Email))
	if allowed, retryAfter := uc.limiter.Allow(ctx, "contact-email", emailKey, uc.cfg.EmailRateLimit); !allowed {
		leadsProcessed.WithLabelValues("rate", "rejected").Inc()
		outcome = "rate_limited"
		return nil, &xerrors.RateLimitError{RetryAfter: retryAfter}
	}

	lead := uc.buildLead(req, meta)
	persisted := uc.persistLead(ctx, lead)
	go uc.publishLead(lead, events.TypeLeadCreated, domain.LeadStatusReceived)

	emailID, crmID, dispatchErr := uc.dispatch(ctx, lead)

	status := domain.LeadStatusFailed
	switch {
	case emailID != "" && crmID != "":
		status = domain.LeadStatusDelivered
	case emailID != "" || crmID != "":
		status = domain.LeadStatusPartial
	}

	if persisted {
		errMsg := ""
		if dispatchErr != nil {
			errMsg = dispatchErr.Error()
		}
		if err := uc.repo.UpdateDispatchResult(ctx, lead.ID, status, emailID, crmID, errMsg); err != nil {
			uc.logger.Error("failed to update lead dispatch result",
				zap.String("lead_id", lead.ID),
				zap.Error(err))
		}
	}

	go uc.publishLead(lead, events.TypeLeadDispatched, status)

	if status == domain.LeadStatusFailed {
		uc.logger.Error("all delivery channels failed",
			zap.String("lead_id", lead.ID),
			zap.Error(dispatchErr))
		leadsProcessed.WithLabelValues("dispatch", "failed").Inc()
		return nil, fmt.Errorf("lead %s: %w", lead.ID, xerrors.ErrDispatchFailed)
	}

	uc.logger.Info("contact processed",
		zap.String("lead_id", lead.ID),
		zap.String("status", status),
		zap.String("locale", lead.Locale),
		zap.String("country", lead.Country),
		zap.Bool("email_sent", emailID != ""),
		zap.Bool("crm_created", crmID != ""),
		zap.Duration("duration", time.Since(start)))
	leadsProcessed.WithLabelValues("dispatch", status).Inc()
	outcome = "success"

	return &ContactResult{
		LeadID:         lead.ID,
		EmailMessageID: emailID,
		CRMRecordID:    crmID,
	}, nil
}

// Stats serves the admin GET /api/contact payload.
func (uc *LeadUsecase) Stats(ctx context.Context) (*domain.LeadStats, error) {
	if uc.repo == nil {
		return nil, fmt.Errorf("lead storage disabled: %w", xerrors.ErrServiceUnconfigured)
	}
	stats, err := uc.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("lead stats: %w", err)
	}
	return stats, nil
}

func (uc *LeadUsecase) buildLead(req *domain.ContactRequest, meta RequestMeta) *domain.Lead {
	lead := &domain.Lead{
		ID:        id.Generate(id.PrefixLead),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Company:   strings.TrimSpace(req.Company),
		Phone:     strings.TrimSpace(req.Phone),
		Message:   strings.TrimSpace(req.Message),
		Locale:    req.NormalizedLocale(),
		Page:      strings.TrimSpace(req.Page),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Status:    domain.LeadStatusReceived,
		CreatedAt: uc.now().UTC(),
	}

	if uc.geo != nil && lead.IP != "" {
		country, err := uc.geo.Country(lead.IP)
		if err != nil {
			uc.logger.Debug("geoip lookup failed",
				zap.String("ip", lead.IP),
				zap.Error(err))
		} else {
			lead.Country = country
		}
	}

	return lead
}

// persistLead stores the lead. Storage being down degrades to dispatch-only
// intake rather than failing the submission.
func (uc *LeadUsecase) persistLead(ctx context.Context, lead *domain.Lead) bool {
	if uc.repo == nil {
		return false
	}
	if err := uc.repo.CreateLead(ctx, lead); err != nil {
		uc.logger.Error("failed to persist lead, continuing with dispatch",
			zap.String("lead_id", lead.ID),
			zap.String("pg_code", xerrors.ParsePGErrorCode(err)),
			zap.Error(err))
		return false
	}
	return true
}

func (uc *LeadUsecase) recordSpam(ctx context.Context, req *domain.ContactRequest, meta RequestMeta) {
	lead := uc.buildLead(req, meta)
	lead.Status = domain.LeadStatusSpam
	uc.logger.Info("honeypot tripped, recording as spam",
		zap.String("lead_id", lead.ID),
		zap.String("ip", meta.IP))
	uc.persistLead(ctx, lead)
	go uc.publishLead(lead, events.TypeLeadCreated, domain.LeadStatusSpam)
}

// dispatch fans the lead out to email and CRM concurrently. Returns whatever
// IDs were produced and, when both channels fail, a combined error.
func (uc *LeadUsecase) dispatch(ctx context.Context, lead *domain.Lead) (emailID, crmID string, err error) {
	var (
		wg       sync.WaitGroup
		emailErr error
		crmErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		emailID, emailErr = uc.dispatchEmail(ctx, lead)
	}()
	go func() {
		defer wg.Done()
		crmID, crmErr = uc.dispatchCRM(ctx, lead)
	}()
	wg.Wait()

	if emailErr != nil && crmErr != nil {
		return "", "", fmt.Errorf("email: %v; crm: %v", emailErr, crmErr)
	}
	return emailID, crmID, nil
}

func (uc *LeadUsecase) dispatchEmail(ctx context.Context, lead *domain.Lead) (string, error) {
	if !uc.email.Configured() {
		uc.logger.Warn("email channel not configured, skipping",
			zap.String("lead_id", lead.ID))
		leadDispatchTotal.WithLabelValues("email", "skipped").Inc()
		return "", fmt.Errorf("email channel: %w", xerrors.ErrServiceUnconfigured)
	}

	subject, htmlBody, textBody := buildLeadEmail(uc.cfg.ContactSubjectPrefix, lead)
	msgID, err := uc.email.Send(ctx, &resend.SendRequest{
		From:    uc.cfg.ContactFrom,
		To:      uc.cfg.ContactTo,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
		ReplyTo: lead.Email,
	})
	if err != nil {
		uc.logger.Error("email dispatch failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err))
		leadDispatchTotal.WithLabelValues("email", "failed").Inc()
		return "", err
	}

	leadDispatchTotal.WithLabelValues("email", "success").Inc()
	return msgID, nil
}

func (uc *LeadUsecase) dispatchCRM(ctx context.Context, lead *domain.Lead) (string, error) {
	if !uc.crm.Configured() {
		uc.logger.Warn("crm channel not configured, skipping",
			zap.String("lead_id", lead.ID))
		leadDispatchTotal.WithLabelValues("crm", "skipped").Inc()
		return "", fmt.Errorf("crm channel: %w", xerrors.ErrServiceUnconfigured)
	}

	recordID, err := uc.crm.CreateRecord(ctx, leadFields(lead))
	if err != nil {
		uc.logger.Error("crm dispatch failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err))
		leadDispatchTotal.WithLabelValues("crm", "failed").Inc()
		return "", err
	}

	leadDispatchTotal.WithLabelValues("crm", "success").Inc()
	return recordID, nil
}

func (uc *LeadUsecase) publishLead(lead *domain.Lead, evtType, status string) {
	uc.publisher.PublishLeadEvent(events.LeadEvent{
		Type:    evtType,
		LeadID:  lead.ID,
		Status:  status,
		Locale:  lead.Locale,
		Country: lead.Country,
		Page:    lead.Page,
	})
}

// buildLeadEmail renders the notification. Plain paragraphs only; anything
// fancier belongs in the email provider's templates.
func buildLeadEmail(subjectPrefix string, lead *domain.Lead) (subject, htmlBody, textBody string) {
	subject = strings.TrimSpace(subjectPrefix + " New contact from " + lead.Name)

	esc := html.EscapeString
	var hb strings.Builder
	hb.WriteString("<h2>New contact form submission</h2>")
	hb.WriteString("<p><strong>Name:</strong> " + esc(lead.Name) + "</p>")
	hb.WriteString("<p><strong>Email:</strong> " + esc(lead.Email) + "</p>")
	if lead.Company != "" {
		hb.WriteString("<p><strong>Company:</strong> " + esc(lead.Company) + "</p>")
	}
	if lead.Phone != "" {
		hb.WriteString("<p><strong>Phone:</strong> " + esc(lead.Phone) + "</p>")
	}
	hb.WriteString("<p><strong>Message:</strong></p><p>" + esc(lead.Message) + "</p>")
	hb.WriteString("<hr><p><small>Lead " + esc(lead.ID) +
		" | locale " + esc(lead.Locale) +
		" | page " + esc(lead.Page) +
		" | " + esc(lead.Country) + "</small></p>")

	var tb strings.Builder
	tb.WriteString("New contact form submission\n\n")
	tb.WriteString("Name: " + lead.Name + "\n")
	tb.WriteString("Email: " + lead.Email + "\n")
	if lead.Company != "" {
		tb.WriteString("Company: " + lead.Company + "\n")
	}
	if lead.Phone != "" {
		tb.WriteString("Phone: " + lead.Phone + "\n")
	}
	tb.WriteString("\n" + lead.Message + "\n\n")
	tb.WriteString("Lead " + lead.ID + " | locale " + lead.Locale + " | page " + lead.Page + "\n")

	return subject, hb.String(), tb.String()
}

// leadFields maps a lead onto the CRM table's columns.
func leadFields(lead *domain.Lead) map[string]interface{} {
	fields := map[string]interface{}{
		"Lead ID":      lead.ID,
		"Name":         lead.Name,
		"Email":        lead.Email,
		"Message":      lead.Message,
		"Locale":       lead.Locale,
		"Submitted At": lead.CreatedAt.Format(time.RFC3339),
	}
	if lead.Company != "" {
		fields["Company"] = lead.Company
	}
	if lead.Phone != "" {
		fields["Phone"] = lead.Phone
	}
	if lead.Page != "" {
		fields["Page"] = lead.Page
	}
	if lead.Country != "" {
		fields["Country"] = lead.Country
	}
	return fields
}
