package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"quiz-gateway/internal/app"
	"quiz-gateway/internal/domain"
)

// Issuer starts a new login session: it records a fresh session id for the user, replacing any older one,
// and signs a token that carries it.
type Issuer struct {
	secret   []byte
	sessions app.KVStore
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(secret string, sessions app.KVStore, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), sessions: sessions, ttl: ttl, now: time.Now}
}

// Issue returns the signed token and the session id written for userID.
func (i *Issuer) Issue(ctx context.Context, userID, displayName string) (string, string, error) {
	if userID == "" {
		return "", "", fmt.Errorf("issue token: user id is required")
	}
	sessionID := uuid.NewString()
	now := i.now()
	claims := jwt.MapClaims{
		ClaimUserID:      userID,
		ClaimSessionID:   sessionID,
		ClaimDisplayName: displayName,
		"iat":            now.Unix(),
		"exp":            now.Add(i.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	if err := i.sessions.Set(ctx, domain.SessionKey(userID), sessionID, i.ttl); err != nil {
		return "", "", fmt.Errorf("store session: %w", err)
	}
	return token, sessionID, nil
}
