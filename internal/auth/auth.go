// Package auth verifies the tokens presented on new relay connections.
// Token issuance lives elsewhere; this service only validates signatures
// and extracts the identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
)

// Config configures token verification.
type Config struct {
	// JWTSecret is the HMAC secret shared with the token issuer.
	JWTSecret string `yaml:"jwt_secret"`
	// TokenExpiry bounds tokens issued by the dev `relay token` command.
	TokenExpiry time.Duration `yaml:"token_expiry"`
	// AllowInsecureDevTokens accepts a bare numeric string as a user ID
	// when signature verification fails. Development only; must never be
	// enabled in a production posture.
	AllowInsecureDevTokens bool `yaml:"allow_insecure_dev_tokens"`
}

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// Claims is the JWT claim set accepted by the relay.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Service validates connection tokens.
type Service struct {
	secret      []byte
	expiry      time.Duration
	devFallback bool
}

// NewService builds a verifier from static configuration.
func NewService(cfg Config) *Service {
	return &Service{
		secret:      []byte(cfg.JWTSecret),
		expiry:      cfg.TokenExpiry,
		devFallback: cfg.AllowInsecureDevTokens,
	}
}

// Verify checks a token and returns the identity it carries. When the
// insecure dev fallback is enabled, a failed signature check falls back
// to accepting a numeric string longer than five digits as a raw user
// ID.
func (s *Service) Verify(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	identity, err := s.verifyJWT(token)
	if err == nil {
		return identity, nil
	}

	if s.devFallback && isNumericID(token) {
		return &Identity{UserID: token}, nil
	}
	return nil, ErrInvalidToken
}

func (s *Service) verifyJWT(token string) (*Identity, error) {
	if len(s.secret) == 0 {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID: userID,
		Name:   strings.TrimSpace(claims.Name),
		Email:  strings.TrimSpace(claims.Email),
	}, nil
}

// Issue signs a token for the given identity. Used by the `relay token`
// development command.
func (s *Service) Issue(identity Identity) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return "", errors.New("user id required")
	}

	claims := Claims{
		Name:  identity.Name,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// isNumericID reports whether the token looks like a raw development
// user ID: digits only, longer than five characters.
func isNumericID(token string) bool {
	if len(token) <= 5 {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
