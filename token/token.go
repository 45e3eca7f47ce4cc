// Package token issues and verifies the signed, time-limited email tokens sent to respondents
// in activation, password reset and email change links.
//
// Tokens are stateless: nothing is recorded server side, so a token can be verified any number
// of times until it is older than the maximum age supplied by the verifier. Each purpose signs
// with its own key, derived from the process secret and a fixed salt, so a token issued for one
// purpose never verifies for another.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired means the token was issued by us for the purpose but is older than the maximum age
	ErrExpired = errors.New("token expired")
	// ErrInvalid means the token is malformed or wasn't signed by us for the purpose
	ErrInvalid = errors.New("token invalid")
)

// Purpose is what an emailed token authorises
type Purpose int

const (
	Activation Purpose = iota
	PasswordReset
	EmailChange
)

func (p Purpose) salt() string {
	switch p {
	case Activation:
		return "email-verification"
	case PasswordReset:
		return "password-reset"
	case EmailChange:
		return "email-change"
	}
	return ""
}

func (p Purpose) String() string {
	if s := p.salt(); s != "" {
		return s
	}
	return fmt.Sprintf("Purpose(%d)", int(p))
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens for a single process-wide secret
type Service struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(secret string, opts ...Option) *Service {
	s := &Service{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) key(p Purpose) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(p.salt()))
	return mac.Sum(nil)
}

// Issue returns a token binding email to the purpose, stamped with the current time
func (s *Service) Issue(p Purpose, email string) (string, error) {
	if p.salt() == "" {
		return "", fmt.Errorf("issue token: unknown purpose %d", int(p))
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
			Audience: jwt.ClaimStrings{p.salt()},
		},
	})
	signed, err := t.SignedString(s.key(p))
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return signed, nil
}

// Verify returns the email bound to the token. The first purpose the token verifies for wins.
// ErrExpired is returned only when the token verified for a purpose but is older than maxAge.
func (s *Service) Verify(token string, maxAge time.Duration, purposes ...Purpose) (string, error) {
	expired := false
	for _, p := range purposes {
		email, err := s.verify(token, maxAge, p)
		if err == nil {
			return email, nil
		}
		if errors.Is(err, ErrExpired) {
			expired = true
		}
	}
	if expired {
		return "", ErrExpired
	}
	return "", ErrInvalid
}

func (s *Service) verify(token string, maxAge time.Duration, p Purpose) (string, error) {
	if p.salt() == "" {
		return "", ErrInvalid
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return s.key(p), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(p.salt()),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.IssuedAt == nil || c.Email == "" {
		return "", ErrInvalid
	}
	// An iat ahead of this clock is skew between instances; it counts as fresh
	if s.now().Sub(c.IssuedAt.Time) > maxAge {
		return "", ErrExpired
	}
	return c.Email, nil
}
