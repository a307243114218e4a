package credauth

import (
	"errors"
	"testing"
	"time"
)

func TestValidateConfigRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short access secret", func(c *Config) { c.JWT.AccessSecret = []byte("short") }},
		{"short refresh secret", func(c *Config) { c.JWT.RefreshSecret = []byte("short") }},
		{"identical secrets", func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret }},
		{"zero access TTL", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"refresh TTL not above access TTL", func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }},
		{"negative leeway", func(c *Config) { c.JWT.Leeway = -time.Second }},
		{"huge leeway", func(c *Config) { c.JWT.Leeway = time.Hour }},
		{"zero reset TTL", func(c *Config) { c.Codes.PasswordResetTTL = 0 }},
		{"OTP too narrow", func(c *Config) { c.Codes.ResetOTPDigits = 3 }},
		{"OTP too wide", func(c *Config) { c.Codes.ResetOTPDigits = 11 }},
		{"negative minimum age", func(c *Config) { c.Account.MinimumAge = -1 }},
		{"rate limit without budget", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.MaxLoginAttempts = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := validateConfig(cfg); !errors.Is(err, ErrConfig) {
				t.Fatalf("want ErrConfig, got %v", err)
			}
		})
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	if err := validateConfig(testConfig()); err != nil {
		t.Fatalf("defaults with secrets must validate: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CREDAUTH_ACCESS_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CREDAUTH_REFRESH_SECRET", "fedcba9876543210fedcba9876543210")
	t.Setenv("CREDAUTH_ISSUER", "env-test")
	t.Setenv("CREDAUTH_ACCESS_TTL", "5m")
	t.Setenv("CREDAUTH_PASSWORD_RESET_TTL", "7m")
	t.Setenv("CREDAUTH_RATE_LIMIT", "true")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.JWT.Issuer != "env-test" {
		t.Fatalf("issuer not applied: %q", cfg.JWT.Issuer)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("access TTL not applied: %v", cfg.JWT.AccessTTL)
	}
	if cfg.Codes.PasswordResetTTL != 7*time.Minute {
		t.Fatalf("reset TTL not applied: %v", cfg.Codes.PasswordResetTTL)
	}
	if !cfg.RateLimit.Enabled {
		t.Fatal("rate limit flag not applied")
	}
	// Untouched knobs keep their defaults.
	if cfg.Codes.ResetOTPDigits != 6 {
		t.Fatalf("OTP digits default lost: %d", cfg.Codes.ResetOTPDigits)
	}
}

func TestConfigFromEnvMissingSecrets(t *testing.T) {
	t.Setenv("CREDAUTH_ACCESS_SECRET", "")
	t.Setenv("CREDAUTH_REFRESH_SECRET", "")

	if _, err := ConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("want ErrConfig without secrets, got %v", err)
	}
}
