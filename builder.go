package credauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmarlow/credauth/internal/logging"
	"github.com/kmarlow/credauth/internal/rate"
	"github.com/kmarlow/credauth/jwt"
	"github.com/kmarlow/credauth/password"
)

// Builder assembles an [Engine]. Construction is allocation-only; nothing
// touches the store or network until the engine's methods are called.
type Builder struct {
	config    Config
	store     CredentialStore
	codeStore CodeStore
	sender    EmailSender
	hasher    PasswordHasher
	redis     *redis.Client
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New starts a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithCodeStore routes verification codes to a separate store (for example
// store/redis) while identities and refresh records stay relational.
func (b *Builder) WithCodeStore(codes CodeStore) *Builder {
	b.codeStore = codes
	return b
}

// WithEmailSender sets the delivery collaborator for verification and
// reset emails.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.sender = sender
	return b
}

// WithHasher overrides the default argon2id password hasher.
func (b *Builder) WithHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

// WithRedis supplies a Redis client for login rate-limit counters. Without
// one, an in-process limiter is used when rate limiting is enabled.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces the engine time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates configuration and wires the managers. Configuration
// problems surface here, wrapped in [ErrConfig], never per-request.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credauth: credential store is required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	codec, err := jwt.NewCodec(jwt.Config{
		AccessSecret:  b.config.JWT.AccessSecret,
		RefreshSecret: b.config.JWT.RefreshSecret,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	codec.WithClock(now)

	hasher := b.hasher
	if hasher == nil {
		hasher, err = password.NewArgon2(password.Config{
			Memory:      b.config.Password.Memory,
			Time:        b.config.Password.Time,
			Parallelism: b.config.Password.Parallelism,
			SaltLength:  b.config.Password.SaltLength,
			KeyLength:   b.config.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
	}

	sender := b.sender
	if sender == nil {
		sender = nopSender{}
	}

	log := logging.NewSlog(b.logger)
	metrics := NewMetrics(b.config.Metrics)

	var limiter loginLimiter
	if b.config.RateLimit.Enabled {
		if b.redis != nil {
			limiter = rate.NewRedisLimiter(b.redis, rate.Config{
				MaxAttempts: b.config.RateLimit.MaxLoginAttempts,
				Cooldown:    b.config.RateLimit.LoginCooldown,
			})
		} else {
			limiter = rate.NewLocalLimiter(rate.Config{
				MaxAttempts: b.config.RateLimit.MaxLoginAttempts,
				Cooldown:    b.config.RateLimit.LoginCooldown,
			})
		}
	}

	codeStore := b.codeStore
	if codeStore == nil {
		codeStore = b.store
	}

	sessions := &SessionManager{
		identities: b.store,
		refresh:    b.store,
		codec:      codec,
		hasher:     hasher,
		config:     b.config.JWT,
		limiter:    limiter,
		metrics:    metrics,
		log:        log,
		now:        now,
	}
	codes := &CodeManager{
		codes:   codeStore,
		config:  b.config.Codes,
		metrics: metrics,
		now:     now,
	}

	return &Engine{
		config:    b.config,
		store:     b.store,
		sender:    sender,
		hasher:    hasher,
		sessions:  sessions,
		codes:     codes,
		usernames: NewUsernameSuggester(b.store),
		metrics:   metrics,
		log:       log,
		now:       now,
	}, nil
}

// nopSender stands in when no EmailSender is configured; every send fails,
// which downgrades to EmailSent=false on the calling operation.
type nopSender struct{}

func (nopSender) Send(context.Context, string, string, string) error {
	return errors.New("no email sender configured")
}
