// Package auth validates bearer tokens for the HTTP surface and exposes the
// caller identity recorded as a conflict's resolver.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the name recorded for actions taken by the caller
func (c *Claims) Identity() string {
	if c.Email != "" {
		return c.Email
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Config holds authentication configuration
type Config struct {
	SecretKey     string
	Issuer        string
	TokenDuration time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Issuer:        "docguard",
		TokenDuration: 24 * time.Hour,
	}
}

// Verifier issues and validates HS256 tokens
type Verifier struct {
	config Config
	now    func() time.Time
}

// NewVerifier creates a Verifier. An empty secret is rejected.
func NewVerifier(config Config) (*Verifier, error) {
	if config.SecretKey == "" {
		return nil, ErrNoSecret
	}
	if config.TokenDuration <= 0 {
		config.TokenDuration = DefaultConfig().TokenDuration
	}
	return &Verifier{config: config, now: time.Now}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(v.config.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Identity() == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IssueToken signs a token for userID, used by operators to mint API credentials
func (v *Verifier) IssueToken(userID, email string) (string, error) {
	now := v.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(v.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.config.SecretKey))
}
