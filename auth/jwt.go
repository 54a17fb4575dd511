// Package auth guards the HTTP endpoints with HS256 bearer tokens.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	Issuer   = "longport-mcp-server"
	Audience = "longport-mcp"

	signingKeyInfo = "longport-mcp-jwt-signing-v1"
)

// Config holds token settings.
type Config struct {
	Secret          string
	TokenExpiry     time.Duration
	AllowedSubjects []string // empty allows any subject
}

// Validate checks the secret and applies the default expiry.
func (c *Config) Validate() error {
	if len(c.Secret) < 16 {
		return errors.New("AUTH_JWT_SECRET must be at least 16 characters")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = 30 * 24 * time.Hour
	}
	if c.TokenExpiry < 0 {
		return fmt.Errorf("token expiry must be positive, got %s", c.TokenExpiry)
	}
	return nil
}

// IsSubjectAllowed checks if the given subject is permitted.
func (c *Config) IsSubjectAllowed(subject string) bool {
	if len(c.AllowedSubjects) == 0 {
		return true
	}
	return slices.ContainsFunc(c.AllowedSubjects, func(s string) bool {
		return strings.EqualFold(s, subject)
	})
}

// DeriveKey derives a 32-byte key from secret with HKDF-SHA256. info
// separates keys derived from the same secret.
func DeriveKey(secret, info string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf derive: %w", err)
	}
	return key, nil
}

// Claims represents the JWT claims for an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTManager handles token generation and validation.
type JWTManager struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTManager validates cfg and derives the signing key from its secret.
func NewJWTManager(cfg Config) (*JWTManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := DeriveKey(cfg.Secret, signingKeyInfo)
	if err != nil {
		return nil, err
	}
	return &JWTManager{key: key, expiry: cfg.TokenExpiry, now: time.Now}, nil
}

// GenerateToken creates a signed token for subject.
func (j *JWTManager) GenerateToken(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := j.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
}

// ValidateToken parses and validates the token, returning its claims.
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(Audience),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
