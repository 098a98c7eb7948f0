// Package auth is the admission side of the server: it turns a presented
// credential into a domain.Identity or rejects it.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/StudyRoom/internal/domain"
)

var (
	ErrNoCredential      = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Authenticator validates a credential and returns a stable identity.
type Authenticator interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWT wraps a signing secret for issuing/verifying HS256 tokens.
type JWT struct {
	secret []byte
	now    func() time.Time
}

func NewJWT(secret string) *JWT { return &JWT{secret: []byte(secret), now: time.Now} }

// Sign issues a token for id valid for ttl.
func (j *JWT) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("empty user id")
	}
	now := j.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(j.secret)
}

// Verify checks signature and expiry and returns the identity in the token.
func (j *JWT) Verify(_ context.Context, credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, ErrNoCredential
	}
	var c claims
	_, err := jwt.ParseWithClaims(credential, &c, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return domain.Identity{}, errors.Join(ErrInvalidCredential, err)
	}
	if c.Subject == "" {
		return domain.Identity{}, ErrInvalidCredential
	}
	name := c.Name
	if name == "" {
		name = c.Subject
	}
	return domain.Identity{UserID: domain.UserID(c.Subject), DisplayName: name}, nil
}
