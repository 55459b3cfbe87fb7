package config

import (
	"strings"
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("PUBLIC_BASE_URL", "https://voice.example.com/")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "voiceagent")
	t.Setenv("DB_SSLMODE", "")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_AUDIENCE", "")
	t.Setenv("JWT_ACCESS_TTL", "")
	t.Setenv("JWT_REFRESH_TTL", "")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550001111")
	t.Setenv("TWILIO_WHATSAPP_FROM", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("VOICE_DEFAULT_LANGUAGE", "")
	t.Setenv("VOICE_DEFAULT_VOICE", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")
	t.Setenv("MAX_CONCURRENT_CALLS_PER_CAMPAIGN", "")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DB.SSLMode != "disable" {
		t.Errorf("SSLMode = %q, want disable default outside production", cfg.DB.SSLMode)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", cfg.OpenAI.Model)
	}
	if cfg.Voice.DefaultLanguage != "en-US" || cfg.Voice.DefaultVoice != "Polly.Joanna" {
		t.Errorf("voice defaults = %q/%q", cfg.Voice.DefaultLanguage, cfg.Voice.DefaultVoice)
	}
	if cfg.Voice.SessionIdleTimeout != 15*time.Minute {
		t.Errorf("SessionIdleTimeout = %v", cfg.Voice.SessionIdleTimeout)
	}
	if cfg.Voice.MaxConcurrentCallsPerCampaign != 10 {
		t.Errorf("MaxConcurrentCallsPerCampaign = %d", cfg.Voice.MaxConcurrentCallsPerCampaign)
	}
	// Trailing slash stripped so webhook URLs join cleanly.
	if cfg.App.PublicBaseURL != "https://voice.example.com" {
		t.Errorf("PublicBaseURL = %q", cfg.App.PublicBaseURL)
	}
}

func TestLoadCollectsAllErrors(t *testing.T) {
	setValidEnv(t)
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TWILIO_ACCOUNT_SID", "")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"APP_ENV", "JWT_SECRET", "TWILIO_ACCOUNT_SID"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q: %s", want, msg)
		}
	}
}

func TestProductionRequiresHTTPSBaseURL(t *testing.T) {
	setValidEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PUBLIC_BASE_URL", "http://voice.example.com")
	t.Setenv("DB_SSLMODE", "require")
	t.Setenv("JWT_ISSUER", "issuer")
	t.Setenv("JWT_AUDIENCE", "aud")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "https") {
		t.Fatalf("expected https requirement, got %v", err)
	}
}

func TestWebhookURL(t *testing.T) {
	setValidEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.WebhookURL("webhooks/voice/turn"); got != "https://voice.example.com/webhooks/voice/turn" {
		t.Fatalf("WebhookURL = %q", got)
	}
}

func TestRefreshTTLMustExceedAccessTTL(t *testing.T) {
	setValidEnv(t)
	t.Setenv("JWT_ACCESS_TTL", "2h")
	t.Setenv("JWT_REFRESH_TTL", "1h")

	if _, err := Load(); err == nil {
		t.Fatalf("expected refresh/access TTL error")
	}
}
