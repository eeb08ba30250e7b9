package domain

import (
	"strings"
	"testing"

	"site-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageRequest_Validate_Text(t *testing.T) {
	req := &SendMessageRequest{
		To:   "+14155550123",
		Type: MessageTypeText,
		Body: "Your demo environment is ready.",
	}
	assert.NoError(t, req.Validate())
}

func TestSendMessageRequest_Validate_Template(t *testing.T) {
	req := &SendMessageRequest{
		To:   "+8613800138000",
		Type: MessageTypeTemplate,
		Template: &TemplateSpec{
			Name:     "lead_followup_v2",
			Language: "zh",
			Params:   []string{"Ada", "Tuesday"},
		},
	}
	assert.NoError(t, req.Validate())
}

func TestSendMessageRequest_Validate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		req   *SendMessageRequest
		field string
	}{
		{
			"missing recipient",
			&SendMessageRequest{Type: MessageTypeText, Body: "hi"},
			"to",
		},
		{
			"recipient without plus",
			&SendMessageRequest{To: "14155550123", Type: MessageTypeText, Body: "hi"},
			"to",
		},
		{
			"recipient with leading zero",
			&SendMessageRequest{To: "+04155550123", Type: MessageTypeText, Body: "hi"},
			"to",
		},
		{
			"recipient too short",
			&SendMessageRequest{To: "+123", Type: MessageTypeText, Body: "hi"},
			"to",
		},
		{
			"recipient with letters",
			&SendMessageRequest{To: "+1415555012a", Type: MessageTypeText, Body: "hi"},
			"to",
		},
		{
			"missing type",
			&SendMessageRequest{To: "+14155550123", Body: "hi"},
			"type",
		},
		{
			"unknown type",
			&SendMessageRequest{To: "+14155550123", Type: "image"},
			"type",
		},
		{
			"text without body",
			&SendMessageRequest{To: "+14155550123", Type: MessageTypeText},
			"body",
		},
		{
			"text body too long",
			&SendMessageRequest{To: "+14155550123", Type: MessageTypeText, Body: strings.Repeat("x", 4097)},
			"body",
		},
		{
			"template without spec",
			&SendMessageRequest{To: "+14155550123", Type: MessageTypeTemplate},
			"template",
		},
		{
			"template name uppercase",
			&SendMessageRequest{To: "+14155550123", Type: MessageTypeTemplate, Template: &TemplateSpec{Name: "LeadFollowup"}},
			"template.name",
		},
		{
			"template name empty",
			&SendMessageRequest{To: "+14155550123", Type: MessageTypeTemplate, Template: &TemplateSpec{Name: ""}},
			"template.name",
		},
		{
			"blank template param",
			&SendMessageRequest{To: "+14155550123", Type: MessageTypeTemplate, Template: &TemplateSpec{Name: "welcome", Params: []string{"Ada", "  "}}},
			"template.params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)

			var ve *xerrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestSendMessageRequest_Validate_BodyAtLimit(t *testing.T) {
	req := &SendMessageRequest{
		To:   "+14155550123",
		Type: MessageTypeText,
		Body: strings.Repeat("x", 4096),
	}
	assert.NoError(t, req.Validate())
}

func TestSendMessageRequest_TemplateLanguage(t *testing.T) {
	req := &SendMessageRequest{Type: MessageTypeTemplate, Template: &TemplateSpec{Name: "welcome", Language: "zh"}}
	assert.Equal(t, "zh", req.TemplateLanguage())

	req.Template.Language = ""
	assert.Equal(t, "en", req.TemplateLanguage())

	req.Template = nil
	assert.Equal(t, "en", req.TemplateLanguage())
}
