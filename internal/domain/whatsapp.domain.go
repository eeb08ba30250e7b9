package domain

import (
	"regexp"
	"strings"
	"time"

	"site-service/pkg/xerrors"
)

// WhatsApp message types accepted by POST /api/whatsapp/send.
const (
	MessageTypeText     = "text"
	MessageTypeTemplate = "template"
)

// Message dispatch outcomes recorded in message_logs.
const (
	MessageStatusSent   = "sent"
	MessageStatusFailed = "failed"
)

const maxTextBody = 4096

// e164Re matches the E.164 recipient format the Cloud API expects.
var e164Re = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// SendMessageRequest is the POST /api/whatsapp/send body.
type SendMessageRequest struct {
	To       string        `json:"to"`
	Type     string        `json:"type"`
	Body     string        `json:"body,omitempty"`
	Template *TemplateSpec `json:"template,omitempty"`
}

// TemplateSpec names a pre-approved message template and its parameters.
type TemplateSpec struct {
	Name     string   `json:"name"`
	Language string   `json:"language,omitempty"`
	Params   []string `json:"params,omitempty"`
}

var templateNameRe = regexp.MustCompile(`^[a-z0-9_]{1,512}$`)

// Validate checks the request against the message type's content rules.
func (r *SendMessageRequest) Validate() error {
	fields := map[string]string{}

	to := strings.TrimSpace(r.To)
	if to == "" {
		fields["to"] = "recipient is required"
	} else if !e164Re.MatchString(to) {
		fields["to"] = "recipient must be an E.164 phone number, e.g. +14155550123"
	}

	switch r.Type {
	case MessageTypeText:
		body := strings.TrimSpace(r.Body)
		if body == "" {
			fields["body"] = "body is required for text messages"
		} else if len(r.Body) > maxTextBody {
			fields["body"] = "body exceeds the 4096 character limit"
		}
	case MessageTypeTemplate:
		if r.Template == nil {
			fields["template"] = "template is required for template messages"
		} else {
			if !templateNameRe.MatchString(r.Template.Name) {
				fields["template.name"] = "template name must be lowercase letters, digits and underscores"
			}
			for _, p := range r.Template.Params {
				if strings.TrimSpace(p) == "" {
					fields["template.params"] = "template parameters must not be blank"
					break
				}
			}
		}
	case "":
		fields["type"] = "type is required"
	default:
		fields["type"] = "type must be text or template"
	}

	if len(fields) > 0 {
		return xerrors.NewValidationError(fields)
	}
	return nil
}

// TemplateLanguage returns the template language code, defaulting to en.
func (r *SendMessageRequest) TemplateLanguage() string {
	if r.Template != nil && r.Template.Language != "" {
		return r.Template.Language
	}
	return "en"
}

// MessageLog records one send attempt sequence against the WhatsApp API.
type MessageLog struct {
	ID        string        `json:"id"`
	Recipient string        `json:"recipient"`
	Type      string        `json:"message_type"`
	Status    string        `json:"status"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	SentAt    time.Time     `json:"sent_at"`
}
