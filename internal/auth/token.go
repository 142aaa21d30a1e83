package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// InsecureDefaultSecret signs tokens when no secret is configured. It is
	// public knowledge; deployments must set AUTH_SECRET.
	InsecureDefaultSecret = "growsome-insecure-default-secret"
	// DefaultTokenTTL is used when no lifetime is configured.
	DefaultTokenTTL = 7 * 24 * time.Hour

	tokenIssuer = "growsome"
)

// Claims is the identity carried by a session token.
type Claims struct {
	UserID    int64
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// ID is unique per issued token.
	ID string
}

type tokenClaims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens. It is immutable after
// construction and safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec builds a codec. An empty secret falls back to
// InsecureDefaultSecret; callers are expected to have logged a warning.
func NewTokenCodec(secret string, now func() time.Time) *TokenCodec {
	if strings.TrimSpace(secret) == "" {
		secret = InsecureDefaultSecret
	}
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{secret: []byte(secret), now: now}
}

// UsesInsecureDefault reports whether the codec fell back to the default secret.
func (c *TokenCodec) UsesInsecureDefault() bool {
	return string(c.secret) == InsecureDefaultSecret
}

// Issue signs claims valid for ttl and returns the token together with the
// claims as issued.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, Claims, error) {
	if claims.UserID <= 0 {
		return "", Claims{}, fmt.Errorf("%w: user id must be positive", ErrInvalidClaims)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return "", Claims{}, fmt.Errorf("%w: email required", ErrInvalidClaims)
	}
	if ttl <= 0 {
		return "", Claims{}, fmt.Errorf("%w: ttl must be positive", ErrInvalidClaims)
	}
	now := c.now()
	issued := Claims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		IssuedAt:  now.Truncate(time.Second),
		ExpiresAt: ceilSecond(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID: issued.UserID,
		Email:  issued.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(issued.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(issued.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(issued.ExpiresAt),
			ID:        issued.ID,
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, issued, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// Every failure is reported as ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	parsed := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.UserID <= 0 || parsed.Email == "" {
		return Claims{}, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	out := Claims{
		UserID: parsed.UserID,
		Email:  parsed.Email,
		ID:     parsed.ID,
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		out.ExpiresAt = parsed.ExpiresAt.Time
	}
	return out, nil
}

// ceilSecond rounds t up to the next whole second so the encoded expiry is
// never earlier than requested.
func ceilSecond(t time.Time) time.Time {
	if tr := t.Truncate(time.Second); !tr.Equal(t) {
		return tr.Add(time.Second)
	}
	return t
}

// ParseTTL accepts Go durations ("90m", "2h"), a day suffix ("7d") or a bare
// number of seconds.
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultTokenTTL, nil
	}
	var ttl time.Duration
	switch {
	case strings.HasSuffix(raw, "d"):
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil {
			return 0, fmt.Errorf("auth: invalid ttl %q", raw)
		}
		ttl = time.Duration(days) * 24 * time.Hour
	default:
		if secs, err := strconv.Atoi(raw); err == nil {
			ttl = time.Duration(secs) * time.Second
			break
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("auth: invalid ttl %q", raw)
		}
		ttl = d
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("auth: ttl must be positive, got %q", raw)
	}
	return ttl, nil
}
