package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{}
	c.App.Env = "local"
	c.App.Port = 8080
	c.App.PublicBaseURL = "https://survey.example.com"
	c.DB.Host = "localhost"
	c.DB.Port = 5432
	c.DB.User = "postgres"
	c.DB.Name = "voicesurvey"
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Auth.JWTSecret = "secret"
	c.Twilio.AccountSID = "AC123"
	c.Twilio.AuthToken = "token"
	c.Twilio.FromNumber = "+15550000000"
	return c
}

func TestValidateAppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode default, got %q", c.DB.SSLMode)
	}
	if c.Queue.SweepInterval != time.Minute {
		t.Fatalf("expected sweep interval default, got %v", c.Queue.SweepInterval)
	}
	if c.Queue.StaleAfter != 30*time.Minute {
		t.Fatalf("expected stale-after default, got %v", c.Queue.StaleAfter)
	}
	if c.Speech.RequestTimeout != 10*time.Second {
		t.Fatalf("expected speech timeout default, got %v", c.Speech.RequestTimeout)
	}
}

func TestValidateRequiresAbsoluteBaseURL(t *testing.T) {
	c := validConfig()
	c.App.PublicBaseURL = "survey.example.com"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "PUBLIC_BASE_URL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRequiresVoiceWithAPIKey(t *testing.T) {
	c := validConfig()
	c.Speech.ElevenLabsAPIKey = "key"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "ELEVENLABS_VOICE_ID") {
		t.Fatalf("expected voice id error, got %v", err)
	}

	c = validConfig()
	c.Speech.ElevenLabsAPIKey = "key"
	c.Speech.DefaultVoiceID = "rachel"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if c.Speech.AssetDir == "" {
		t.Fatalf("expected asset dir default")
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST", "JWT_SECRET", "TWILIO_ACCOUNT_SID"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}
