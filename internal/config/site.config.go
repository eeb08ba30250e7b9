package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string

	RedisAddr string
	RedisPass string
	RedisDB   int

	// Route auth.
	AdminAPIToken  string
	WhatsAppAPIKey string

	// Turnstile (CAPTCHA) verification.
	TurnstileSecretKey string
	TurnstileVerifyURL string

	// Resend transactional email.
	ResendAPIKey         string
	ResendAPIBase        string
	ContactFrom          string
	ContactTo            []string
	ContactSubjectPrefix string

	// Airtable CRM.
	AirtableAPIKey  string
	AirtableAPIBase string
	AirtableBaseID  string
	AirtableTable   string

	// WhatsApp Cloud API.
	WhatsAppAccessToken string
	WhatsAppPhoneID     string
	WhatsAppAPIBase     string
	WhatsAppMaxAttempts int
	WhatsAppRetryDelays []time.Duration

	// Proxy header trust (vercel | cloudflare | development).
	DeploymentPlatform string

	KafkaBrokers []string
	KafkaTopic   string

	GeoIPDBPath string

	LocaleDir      string
	LocaleCacheCap int
	LocaleCacheTTL time.Duration

	// Rate limiting.
	ContactRateMax     int
	ContactRateWindow  time.Duration
	ContactRateBlock   time.Duration
	ContactEmailMax    int
	ContactEmailWindow time.Duration
	WhatsAppRateMax    int
	WhatsAppRateWindow time.Duration
	WhatsAppRateBlock  time.Duration

	// Form timing window.
	FormMinFillTime time.Duration
	FormMaxAge      time.Duration
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("SITE: No .env file found, relying on system env vars")
	}

	return AppConfig{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		RedisAddr: getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),
		RedisDB:   getEnvAsInt("REDIS_DB", 0),

		AdminAPIToken:  getEnv("ADMIN_API_TOKEN", ""),
		WhatsAppAPIKey: getEnv("WHATSAPP_API_KEY", ""),

		TurnstileSecretKey: getEnv("TURNSTILE_SECRET_KEY", ""),
		TurnstileVerifyURL: getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),

		ResendAPIKey:         getEnv("RESEND_API_KEY", ""),
		ResendAPIBase:        getEnv("RESEND_API_BASE", "https://api.resend.com"),
		ContactFrom:          getEnv("CONTACT_FROM", "website@notifications.example.com"),
		ContactTo:            parseCSVEnv("CONTACT_TO", "sales@example.com"),
		ContactSubjectPrefix: getEnv("CONTACT_SUBJECT_PREFIX", "[Website]"),

		AirtableAPIKey:  getEnv("AIRTABLE_API_KEY", ""),
		AirtableAPIBase: getEnv("AIRTABLE_API_BASE", "https://api.airtable.com"),
		AirtableBaseID:  getEnv("AIRTABLE_BASE_ID", ""),
		AirtableTable:   getEnv("AIRTABLE_TABLE", "Leads"),

		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneID:     getEnv("WHATSAPP_PHONE_ID", ""),
		WhatsAppAPIBase:     getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com/v19.0"),
		WhatsAppMaxAttempts: getEnvAsInt("WHATSAPP_MAX_ATTEMPTS", 3),
		WhatsAppRetryDelays: parseDurationsEnv("WHATSAPP_RETRY_DELAYS", "1s,2s"),

		DeploymentPlatform: getEnv("DEPLOYMENT_PLATFORM", "development"),

		KafkaBrokers: parseCSVEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "site.leads"),

		GeoIPDBPath: getEnv("GEOIP_DB_PATH", ""),

		LocaleDir:      getEnv("LOCALE_DIR", "locales"),
		LocaleCacheCap: getEnvAsInt("LOCALE_CACHE_CAP", 8),
		LocaleCacheTTL: getEnvAsDuration("LOCALE_CACHE_TTL", time.Hour),

		ContactRateMax:     getEnvAsInt("CONTACT_RATE_MAX", 5),
		ContactRateWindow:  getEnvAsDuration("CONTACT_RATE_WINDOW", time.Minute),
		ContactRateBlock:   getEnvAsDuration("CONTACT_RATE_BLOCK", 10*time.Minute),
		ContactEmailMax:    getEnvAsInt("CONTACT_EMAIL_MAX", 3),
		ContactEmailWindow: getEnvAsDuration("CONTACT_EMAIL_WINDOW", time.Hour),
		WhatsAppRateMax:    getEnvAsInt("WHATSAPP_RATE_MAX", 10),
		WhatsAppRateWindow: getEnvAsDuration("WHATSAPP_RATE_WINDOW", time.Minute),
		WhatsAppRateBlock:  getEnvAsDuration("WHATSAPP_RATE_BLOCK", 5*time.Minute),

		FormMinFillTime: getEnvAsDuration("FORM_MIN_FILL_TIME", 3*time.Second),
		FormMaxAge:      getEnvAsDuration("FORM_MAX_AGE", 24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseCSVEnv(key, fallback string) []string {
	val := getEnv(key, fallback)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDurationsEnv reads a comma-separated duration list ("1s,2s,5s").
// Unparseable entries are dropped; an empty result falls back to the default.
func parseDurationsEnv(key, fallback string) []time.Duration {
	raw := parseCSVEnv(key, fallback)
	out := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		for _, s := range strings.Split(fallback, ",") {
			if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
				out = append(out, d)
			}
		}
	}
	return out
}
