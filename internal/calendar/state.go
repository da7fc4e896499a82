package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	stateIssuer   = "schedly"
	stateAudience = "google-calendar-connect"

	// DefaultStateTTL はOAuthのstateの有効期間。
	DefaultStateTTL = 10 * time.Minute
)

// ErrInvalidState はstateが不正、期限切れ、または別ユーザーのものであることを表す。
var ErrInvalidState = errors.New("invalid oauth state")

// StateSigner はOAuthのstateをユーザーに紐づいた署名付きトークンとして発行・検証する。
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner はHS256で署名するStateSignerを生成する。
func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign はユーザーIDをsubjectとしたstateを発行する。
func (s *StateSigner) Sign(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    stateIssuer,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify はstateを検証し、userIDに発行されたものであることを確認する。
func (s *StateSigner) Verify(state, userID string) error {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if claims.Subject != userID {
		return fmt.Errorf("%w: issued for another user", ErrInvalidState)
	}
	return nil
}
