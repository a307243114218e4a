package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var (
	// ErrInvalid covers malformed tokens, bad signatures, and kind mismatches.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when the token verifies but has outlived exp.
	ErrExpired = errors.New("token expired")
)

// Config holds the codec's secret material and claim policy. Access and
// refresh tokens use separate HMAC secrets, so a refresh token can never
// pass access verification and vice versa.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

// Codec creates and verifies signed, time-limited tokens. It is stateless:
// given the same secrets and clock, issuance and verification are
// referentially transparent.
type Codec struct {
	config Config
	now    func() time.Time
}

// AccessClaims is the self-contained claim set embedded in access tokens.
type AccessClaims struct {
	IdentityID string `json:"uid"`
	Email      string `json:"eml"`
	Role       string `json:"rol"`
	Kind       string `json:"tkn"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the owning identity; everything else about a
// refresh session lives server-side in its store record.
type RefreshClaims struct {
	IdentityID string `json:"uid"`
	Kind       string `json:"tkn"`
	jwt.RegisteredClaims
}

// NewCodec validates the secrets and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("jwt: both signing secrets are required")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("jwt: negative leeway")
	}
	return &Codec{config: cfg, now: time.Now}, nil
}

// WithClock replaces the codec's time source. Intended for tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// IssueAccess signs an access token embedding the given claims with an
// absolute expiry of now+ttl.
func (c *Codec) IssueAccess(identityID, email, role string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := AccessClaims{
		IdentityID: identityID,
		Email:      email,
		Role:       role,
		Kind:       kindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.AccessSecret)
}

// IssueRefresh signs a refresh token bound to identityID. The jti makes
// every issued token unique even for the same identity and expiry second,
// which matters because the token value keys its store record.
func (c *Codec) IssueRefresh(identityID string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := RefreshClaims{
		IdentityID: identityID,
		Kind:       kindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.RefreshSecret)
}

// ParseAccess verifies signature, expiry, and kind for an access token.
func (c *Codec) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Kind != kindAccess {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseRefresh verifies signature, expiry, and kind for a refresh token.
func (c *Codec) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Kind != kindRefresh {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (c *Codec) parse(token string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalid
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}
