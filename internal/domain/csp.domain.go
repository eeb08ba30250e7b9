package domain

import (
	"net/url"
	"strings"

	"site-service/pkg/xerrors"
)

// CSP violation severities, ordered by how likely the directive is to
// indicate script injection rather than a broken asset.
const (
	CSPSeverityHigh   = "high"
	CSPSeverityMedium = "medium"
	CSPSeverityLow    = "low"
)

// CSPReportEnvelope is the body browsers POST to the report-uri endpoint.
type CSPReportEnvelope struct {
	Report *CSPReport `json:"csp-report"`
}

// CSPReport is the violation payload inside the envelope. Field names follow
// the CSP2 reporting format.
type CSPReport struct {
	DocumentURI        string `json:"document-uri"`
	Referrer           string `json:"referrer,omitempty"`
	ViolatedDirective  string `json:"violated-directive"`
	EffectiveDirective string `json:"effective-directive,omitempty"`
	OriginalPolicy     string `json:"original-policy,omitempty"`
	BlockedURI         string `json:"blocked-uri,omitempty"`
	StatusCode         int    `json:"status-code,omitempty"`
	SourceFile         string `json:"source-file,omitempty"`
	LineNumber         int    `json:"line-number,omitempty"`
	ColumnNumber       int    `json:"column-number,omitempty"`
	Disposition        string `json:"disposition,omitempty"`
	ScriptSample       string `json:"script-sample,omitempty"`
}

// Validate checks the report carries the minimum shape worth logging.
func (r *CSPReport) Validate() error {
	fields := map[string]string{}

	doc := strings.TrimSpace(r.DocumentURI)
	if doc == "" {
		fields["document-uri"] = "document-uri is required"
	} else if u, err := url.Parse(doc); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		fields["document-uri"] = "document-uri must be an http(s) URL"
	}

	if strings.TrimSpace(r.ViolatedDirective) == "" {
		fields["violated-directive"] = "violated-directive is required"
	}

	if r.Disposition != "" && r.Disposition != "enforce" && r.Disposition != "report" {
		fields["disposition"] = "disposition must be enforce or report"
	}

	if len(fields) > 0 {
		return xerrors.NewValidationError(fields)
	}
	return nil
}

// Directive returns the base directive name: the first token of
// violated-directive with -elem/-attr refinements stripped, so
// "script-src-elem 'self'" classifies as script-src.
func (r *CSPReport) Directive() string {
	d := strings.ToLower(strings.TrimSpace(r.ViolatedDirective))
	if i := strings.IndexByte(d, ' '); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, "-elem")
	d = strings.TrimSuffix(d, "-attr")
	return d
}

// Severity classifies the violation. Script-capable directives rank high,
// asset directives medium, everything else low.
func (r *CSPReport) Severity() string {
	switch r.Directive() {
	case "script-src", "object-src", "base-uri":
		return CSPSeverityHigh
	case "style-src", "img-src", "font-src", "media-src":
		return CSPSeverityMedium
	default:
		return CSPSeverityLow
	}
}
