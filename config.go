package credauth

import (
	"bytes"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries all engine tuning. Zero values are filled from
// [DefaultConfig] by the Builder; validation happens once at Build, so a
// missing signing secret is a construction failure, never a per-request one.
type Config struct {
	JWT       JWTConfig
	Codes     CodeConfig
	Password  PasswordConfig
	Account   AccountConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token codec. Access and refresh tokens are
// signed with distinct secrets so the kinds are not interchangeable.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
VERIFICATION CODE CONFIG
====================================
*/

// CodeConfig configures per-purpose verification-code windows.
type CodeConfig struct {
	// EmailVerifyTTL bounds link tokens for email verification.
	EmailVerifyTTL time.Duration
	// PasswordResetTTL bounds manually entered reset OTPs. Kept short.
	PasswordResetTTL time.Duration
	// ResetOTPDigits is the reset code width. 6 yields [100000, 999999].
	ResetOTPDigits int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for the default hasher.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig configures registration policy.
type AccountConfig struct {
	// MinimumAge gates registration by birth date, evaluated at call time.
	MinimumAge int
	// SuggestionLimit caps the alternatives attached to a username conflict.
	SuggestionLimit int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the login attempt budget. When a Redis client
// is supplied to the Builder the counters live there; otherwise an
// in-process token bucket is used.
type RateLimitConfig struct {
	Enabled          bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the documented defaults. Signing secrets have no
// default and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Codes: CodeConfig{
			EmailVerifyTTL:   24 * time.Hour,
			PasswordResetTTL: 10 * time.Minute,
			ResetOTPDigits:   6,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Account: AccountConfig{
			MinimumAge:      13,
			SuggestionLimit: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled:          false,
			MaxLoginAttempts: 10,
			LoginCooldown:    15 * time.Minute,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

const minSecretBytes = 32

func validateConfig(cfg Config) error {
	if len(cfg.JWT.AccessSecret) < minSecretBytes {
		return fmt.Errorf("%w: access secret must be at least %d bytes", ErrConfig, minSecretBytes)
	}
	if len(cfg.JWT.RefreshSecret) < minSecretBytes {
		return fmt.Errorf("%w: refresh secret must be at least %d bytes", ErrConfig, minSecretBytes)
	}
	if bytes.Equal(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret) {
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", ErrConfig)
	}
	if cfg.JWT.RefreshTTL <= cfg.JWT.AccessTTL {
		return fmt.Errorf("%w: refresh TTL must exceed access TTL", ErrConfig)
	}
	if cfg.JWT.Leeway < 0 || cfg.JWT.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: leeway out of range", ErrConfig)
	}
	if cfg.Codes.EmailVerifyTTL <= 0 || cfg.Codes.PasswordResetTTL <= 0 {
		return fmt.Errorf("%w: code TTLs must be positive", ErrConfig)
	}
	if cfg.Codes.ResetOTPDigits < 4 || cfg.Codes.ResetOTPDigits > 10 {
		return fmt.Errorf("%w: reset OTP digits out of range", ErrConfig)
	}
	if cfg.Account.MinimumAge < 0 {
		return fmt.Errorf("%w: negative minimum age", ErrConfig)
	}
	if cfg.Account.SuggestionLimit < 0 {
		return fmt.Errorf("%w: negative suggestion limit", ErrConfig)
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.MaxLoginAttempts <= 0 || cfg.RateLimit.LoginCooldown <= 0) {
		return fmt.Errorf("%w: rate limit requires a positive budget and cooldown", ErrConfig)
	}
	return nil
}

// envConfig maps environment variables onto Config the way twelve-factor
// deployments expect. Only the knobs that differ per environment are
// exposed; everything else keeps its default.
type envConfig struct {
	AccessSecret     string        `env:"CREDAUTH_ACCESS_SECRET,required"`
	RefreshSecret    string        `env:"CREDAUTH_REFRESH_SECRET,required"`
	Issuer           string        `env:"CREDAUTH_ISSUER" envDefault:""`
	AccessTTL        time.Duration `env:"CREDAUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL       time.Duration `env:"CREDAUTH_REFRESH_TTL" envDefault:"720h"`
	EmailVerifyTTL   time.Duration `env:"CREDAUTH_EMAIL_VERIFY_TTL" envDefault:"24h"`
	PasswordResetTTL time.Duration `env:"CREDAUTH_PASSWORD_RESET_TTL" envDefault:"10m"`
	MetricsEnabled   bool          `env:"CREDAUTH_METRICS" envDefault:"true"`
	RateLimitEnabled bool          `env:"CREDAUTH_RATE_LIMIT" envDefault:"false"`
}

// ConfigFromEnv builds a Config from CREDAUTH_* environment variables on
// top of [DefaultConfig]. Missing required variables surface as ErrConfig.
func ConfigFromEnv() (Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte(ec.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(ec.RefreshSecret)
	cfg.JWT.Issuer = ec.Issuer
	cfg.JWT.AccessTTL = ec.AccessTTL
	cfg.JWT.RefreshTTL = ec.RefreshTTL
	cfg.Codes.EmailVerifyTTL = ec.EmailVerifyTTL
	cfg.Codes.PasswordResetTTL = ec.PasswordResetTTL
	cfg.Metrics.Enabled = ec.MetricsEnabled
	cfg.RateLimit.Enabled = ec.RateLimitEnabled
	return cfg, validateConfig(cfg)
}
