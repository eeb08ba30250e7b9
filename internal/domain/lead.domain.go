package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"site-service/pkg/xerrors"
)

// Lead lifecycle statuses.
const (
	LeadStatusReceived  = "received"  // persisted, dispatch pending
	LeadStatusDelivered = "delivered" // email and CRM both succeeded
	LeadStatusPartial   = "partial"   // exactly one channel succeeded
	LeadStatusFailed    = "failed"    // both channels failed
	LeadStatusSpam      = "spam"      // honeypot tripped, never dispatched
)

var supportedLocales = []string{"en", "zh"}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// phoneRe accepts loose international formats: optional +, digits with
// common separators.
var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]{5,30}$`)

// ContactRequest is the POST /api/contact body as submitted by the site's
// contact form.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
	Locale  string `json:"locale,omitempty"`
	Page    string `json:"page,omitempty"`

	TurnstileToken string `json:"turnstileToken"`

	// FormStartedAt is the client clock reading (unix milliseconds) taken
	// when the form rendered. Used for the bot timing window.
	FormStartedAt int64 `json:"formStartedAt"`

	// Website is the honeypot field. Humans never see it; anything here
	// marks the submission as spam.
	Website string `json:"website,omitempty"`
}

// Validate checks field shapes and bounds, returning a ValidationError that
// carries one message per offending field.
func (r *ContactRequest) Validate() error {
	fields := map[string]string{}

	name := strings.TrimSpace(r.Name)
	switch {
	case name == "":
		fields["name"] = "name is required"
	case len(name) < 2:
		fields["name"] = "name must be at least 2 characters"
	case len(name) > 100:
		fields["name"] = "name must be at most 100 characters"
	}

	email := strings.TrimSpace(r.Email)
	switch {
	case email == "":
		fields["email"] = "email is required"
	case len(email) > 254 || !emailRe.MatchString(email):
		fields["email"] = "email address is not valid"
	}

	if len(r.Company) > 200 {
		fields["company"] = "company must be at most 200 characters"
	}

	if p := strings.TrimSpace(r.Phone); p != "" && !phoneRe.MatchString(p) {
		fields["phone"] = "phone number is not valid"
	}

	msg := strings.TrimSpace(r.Message)
	switch {
	case msg == "":
		fields["message"] = "message is required"
	case len(msg) < 10:
		fields["message"] = "message must be at least 10 characters"
	case len(msg) > 5000:
		fields["message"] = "message must be at most 5000 characters"
	}

	if r.Locale != "" && !isSupportedLocale(r.Locale) {
		fields["locale"] = "locale must be one of: " + strings.Join(supportedLocales, ", ")
	}

	if len(r.Page) > 300 {
		fields["page"] = "page must be at most 300 characters"
	}

	if len(fields) > 0 {
		return xerrors.NewValidationError(fields)
	}
	return nil
}

// CheckTiming rejects submissions filled in faster than a human could type
// (minFill) or from forms rendered too long ago (maxAge).
func (r *ContactRequest) CheckTiming(now time.Time, minFill, maxAge time.Duration) error {
	if r.FormStartedAt <= 0 {
		return fmt.Errorf("missing form timestamp: %w", xerrors.ErrTimingRejected)
	}
	started := time.UnixMilli(r.FormStartedAt)
	elapsed := now.Sub(started)
	if elapsed < minFill {
		return fmt.Errorf("form submitted after %s, minimum is %s: %w", elapsed, minFill, xerrors.ErrTimingRejected)
	}
	if elapsed > maxAge {
		return fmt.Errorf("form is %s old, maximum is %s: %w", elapsed, maxAge, xerrors.ErrTimingRejected)
	}
	return nil
}

// NormalizedLocale returns the request locale or the default when unset.
func (r *ContactRequest) NormalizedLocale() string {
	if isSupportedLocale(r.Locale) {
		return strings.ToLower(strings.TrimSpace(r.Locale))
	}
	return "en"
}

// IsHoneypot reports whether the hidden field was filled in.
func (r *ContactRequest) IsHoneypot() bool {
	return strings.TrimSpace(r.Website) != ""
}

func isSupportedLocale(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, s := range supportedLocales {
		if s == code {
			return true
		}
	}
	return false
}

// Lead is the persisted intake record. Dispatch fields fill in as the
// email/CRM fan-out completes.
type Lead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
	Locale  string `json:"locale"`
	Page    string `json:"page,omitempty"`

	IP        string `json:"ip,omitempty"`
	Country   string `json:"country,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Status         string `json:"status"`
	EmailMessageID string `json:"email_message_id,omitempty"`
	CRMRecordID    string `json:"crm_record_id,omitempty"`
	DispatchError  string `json:"dispatch_error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// LeadStats is the admin GET /api/contact payload.
type LeadStats struct {
	Total    int64            `json:"total"`
	Last24h  int64            `json:"last_24h"`
	Last7d   int64            `json:"last_7d"`
	ByStatus map[string]int64 `json:"by_status"`
	ByLocale map[string]int64 `json:"by_locale"`
	LatestAt *time.Time       `json:"latest_at,omitempty"`
}
