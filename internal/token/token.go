// Package token issues and verifies the HS256 JWTs used for sessions and for
// the OAuth state parameter.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionAudience = "speedgolf-session"
	stateAudience   = "speedgolf-oauth-state"
	stateTTL        = 10 * time.Minute
)

var ErrInvalid = errors.New("invalid token")

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of session tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a session token whose subject is accountID.
func (i *Issuer) Issue(accountID string) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", fmt.Errorf("issue token: empty account id")
	}
	return i.sign(accountID, sessionAudience, i.ttl)
}

// Parse verifies a session token and returns its account id.
func (i *Issuer) Parse(raw string) (string, error) {
	return i.verify(raw, sessionAudience)
}

// IssueState signs the short-lived state parameter for an OAuth redirect.
func (i *Issuer) IssueState(provider string) (string, error) {
	return i.sign(provider, stateAudience, stateTTL)
}

// VerifyState returns the provider the state was issued for.
func (i *Issuer) VerifyState(raw string) (string, error) {
	return i.verify(raw, stateAudience)
}

func (i *Issuer) sign(subject, audience string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Issuer) verify(raw, audience string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return claims.Subject, nil
}
