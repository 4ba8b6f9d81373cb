package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"quiz-gateway/internal/app"
	"quiz-gateway/internal/domain"
)

// Claim names carried by gateway tokens.
const (
	ClaimUserID      = "user_id"
	ClaimSessionID   = "session_uuid"
	ClaimDisplayName = "fullname"
)

// Validator checks a signed token and cross-checks its session id against the shared store. It never writes.
type Validator struct {
	secret   []byte
	sessions app.KVStore
	parser   *jwt.Parser
}

func NewValidator(secret string, sessions app.KVStore) *Validator {
	return &Validator{
		secret:   []byte(secret),
		sessions: sessions,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Validate returns the identity behind token, or exactly one of the authentication errors in domain.
func (v *Validator) Validate(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.ErrMissingToken
	}

	parsed, err := v.parser.Parse(token, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, domain.ErrMalformedClaims
	}
	identity := domain.Identity{
		UserID:      claimString(claims, ClaimUserID),
		SessionID:   claimString(claims, ClaimSessionID),
		DisplayName: claimString(claims, ClaimDisplayName),
	}
	if identity.UserID == "" || identity.SessionID == "" {
		return domain.Identity{}, domain.ErrMalformedClaims
	}

	if err := v.CheckSession(ctx, identity); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

// CheckSession reports whether identity still holds the session on record. A later login elsewhere
// replaces the record and turns every older connection stale.
func (v *Validator) CheckSession(ctx context.Context, identity domain.Identity) error {
	current, err := v.sessions.Get(ctx, domain.SessionKey(identity.UserID))
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		return domain.ErrSessionNotFound
	case err != nil:
		return fmt.Errorf("%w: %v", domain.ErrSessionStoreUnavailable, err)
	case current == "":
		return domain.ErrSessionNotFound
	case current != identity.SessionID:
		return domain.ErrSessionMismatch
	}
	return nil
}

// claimString accepts string and numeric claims; numeric user ids are common in older tokens.
func claimString(claims jwt.MapClaims, name string) string {
	switch v := claims[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
