package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "development", cfg.DeploymentPlatform)
	assert.Equal(t, 3, cfg.WhatsAppMaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.WhatsAppRetryDelays)
	assert.Equal(t, 3*time.Second, cfg.FormMinFillTime)
	assert.Equal(t, 24*time.Hour, cfg.FormMaxAge)
	assert.Equal(t, 5, cfg.ContactRateMax)
	assert.Empty(t, cfg.KafkaBrokers, "kafka stays disabled until brokers are set")
	assert.Empty(t, cfg.AdminAPIToken, "admin stats stay disabled until a token is set")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("DEPLOYMENT_PLATFORM", "vercel")
	t.Setenv("CONTACT_TO", "a@example.com, b@example.com")
	t.Setenv("WHATSAPP_RETRY_DELAYS", "500ms,1s,5s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FORM_MIN_FILL_TIME", "5s")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "vercel", cfg.DeploymentPlatform)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.ContactTo)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 5 * time.Second}, cfg.WhatsAppRetryDelays)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.FormMinFillTime)
}

func TestGetEnvHelpers_IgnoreGarbage(t *testing.T) {
	t.Setenv("WHATSAPP_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("FORM_MAX_AGE", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 3, cfg.WhatsAppMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.FormMaxAge)
}

func TestParseDurationsEnv_DropsBadEntries(t *testing.T) {
	t.Setenv("WHATSAPP_RETRY_DELAYS", "1s,banana,3s")
	cfg := Load()
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, cfg.WhatsAppRetryDelays)

	t.Setenv("WHATSAPP_RETRY_DELAYS", "banana")
	cfg = Load()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.WhatsAppRetryDelays,
		"all-bad input falls back to defaults")
}
