// Package auth provides session tokens, password hashing, GitHub sign-in and
// the authentication middleware for CodeCanvas.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The user signs up or logs in with email and password (/login, /signup),
//     or signs in with GitHub (/auth/github/login → GitHub → /callback)
//  2. The server issues a JWT and stores it in the HttpOnly "token" cookie
//  3. OptionalAuth reads the cookie on every request and puts the user ID in
//     the request context; RequireAuth additionally rejects anonymous API calls
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"userID","iss":"codecanvas","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// PURPOSE TOKENS:
// The same signer issues short-lived single-purpose tokens (password reset
// links). They carry a "purpose" claim; Validate rejects them, so a leaked
// reset link can never be used as a session cookie, and ValidatePurpose
// rejects session tokens.
//
// A bound purpose token also carries a fingerprint of some server-side state
// (for reset links, the current password hash). It stops validating once that
// state changes, so a reset link works only once.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the "iss" claim of every token this service signs.
const Issuer = "codecanvas"

// DefaultTokenTTL is the session lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// PurposePasswordReset scopes a token to the reset-password page.
const PurposePasswordReset = "password-reset"

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and session
// lifetime. A non-positive ttl falls back to DefaultTokenTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the session lifetime; the handler uses it for the cookie's MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. Purpose is empty for session tokens.
type claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose,omitempty"`
	Binding string `json:"bnd,omitempty"`
}

// Generate creates and signs a session token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.sign(userID, "", "", s.ttl)
}

// GenerateWithDuration creates a session token with a custom lifetime.
// Tests use it to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	return s.sign(userID, "", "", d)
}

// GeneratePurpose creates a token usable only for purpose.
func (s *TokenService) GeneratePurpose(subject, purpose string, d time.Duration) (string, error) {
	if purpose == "" {
		return "", errors.New("auth: purpose must not be empty")
	}
	return s.sign(subject, purpose, "", d)
}

// GenerateBoundPurpose creates a purpose token tied to state. It validates
// only while the subject's state is unchanged.
func (s *TokenService) GenerateBoundPurpose(subject, purpose, state string, d time.Duration) (string, error) {
	if purpose == "" {
		return "", errors.New("auth: purpose must not be empty")
	}
	return s.sign(subject, purpose, s.fingerprint(state), d)
}

// Validate verifies a session token and returns the user ID in its "sub"
// claim.
//
// VALIDATION CHECKS:
//   - Signature is valid and the algorithm is HS256 (no "none" tokens)
//   - Token is not expired
//   - Issuer is "codecanvas"
//   - Token is not a purpose token
func (s *TokenService) Validate(tokenStr string) (string, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if c.Purpose != "" {
		return "", fmt.Errorf("auth: %s token cannot be used as a session", c.Purpose)
	}
	return c.Subject, nil
}

// ValidatePurpose verifies a purpose token and returns its subject.
func (s *TokenService) ValidatePurpose(tokenStr, purpose string) (string, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if c.Purpose != purpose {
		return "", fmt.Errorf("auth: token is not a %s token", purpose)
	}
	return c.Subject, nil
}

// ValidateBoundPurpose verifies a token made by GenerateBoundPurpose. state
// looks up the subject's current state, which must match the one the token
// was issued for.
func (s *TokenService) ValidateBoundPurpose(tokenStr, purpose string, state func(subject string) (string, error)) (string, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if c.Purpose != purpose {
		return "", fmt.Errorf("auth: token is not a %s token", purpose)
	}
	if c.Binding == "" {
		return "", errors.New("auth: token is not bound")
	}
	current, err := state(c.Subject)
	if err != nil {
		return "", fmt.Errorf("auth: looking up token state: %w", err)
	}
	if !hmac.Equal([]byte(c.Binding), []byte(s.fingerprint(current))) {
		return "", errors.New("auth: token has already been used")
	}
	return c.Subject, nil
}

// fingerprint is an HMAC of state, so the token never reveals state itself.
func (s *TokenService) fingerprint(state string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(state))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *TokenService) sign(subject, purpose, binding string, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    Issuer,
		},
		Purpose: purpose,
		Binding: binding,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(tokenStr string) (*claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	return c, nil
}
