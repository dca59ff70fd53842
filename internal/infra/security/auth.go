package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"colleague-chat/internal/config"
	"colleague-chat/internal/domain"
)

// AuthManager issues and verifies the bearer tokens of the chat API.
type AuthManager struct {
	secret   []byte
	ttl      time.Duration
	username string
	password string
	now      func() time.Time
}

func NewAuthManager(cfg config.AuthConfig) *AuthManager {
	return &AuthManager{
		secret:   []byte(cfg.JWTSecret),
		ttl:      cfg.TTL,
		username: strings.ToLower(strings.TrimSpace(cfg.Username)),
		password: strings.TrimSpace(cfg.Password),
		now:      time.Now,
	}
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Login compares the normalized credentials with the configured account and
// mints a token on success.
func (a *AuthManager) Login(username, password string) (string, time.Time, error) {
	u := strings.ToLower(strings.TrimSpace(username))
	p := strings.TrimSpace(password)
	if a.username == "" || a.password == "" {
		return "", time.Time{}, domain.ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(p), []byte(a.password)) == 1
	if !userOK || !passOK {
		return "", time.Time{}, domain.ErrInvalidCredentials
	}
	return a.Mint(u)
}

func (a *AuthManager) Mint(subject string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := Claims{
		Username: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Subject:   subject,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify returns domain.ErrUnauthorized for any missing, malformed or expired token.
func (a *AuthManager) Verify(tok string) (*Claims, error) {
	if tok == "" {
		return nil, domain.ErrUnauthorized
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *AuthManager) ParseFromRequest(r *http.Request) (*Claims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return a.Verify(strings.TrimSpace(hdr[7:]))
	}
	return nil, errors.Join(domain.ErrUnauthorized, errors.New("missing bearer token"))
}

// Principal converts verified claims into the request principal.
func (c *Claims) Principal() domain.Principal {
	return domain.Principal{Subject: c.Subject}
}
