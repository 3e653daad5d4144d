package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
)

// DefaultSecondaryTokenTTL bounds how long a verified secondary password stays usable.
const DefaultSecondaryTokenTTL = 5 * time.Minute

// PasswordStore keeps bcrypt hashes of secondary passwords.
// PasswordHash returns domain.ErrNoPassword when none is set.
type PasswordStore interface {
	SetPasswordHash(ctx context.Context, participantID string, hash []byte) error
	PasswordHash(ctx context.Context, participantID string) ([]byte, error)
}

// TokenStore keeps issued tokens until they expire or are taken.
// Get and Take only return tokens issued to participantID; unknown ids give
// domain.ErrTokenExpired. Take removes atomically so a token can be taken at most
// once, and never removes a token owned by someone else.
type TokenStore interface {
	Save(ctx context.Context, token domain.SecondaryAuthToken) error
	Get(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error)
	Take(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error)
}

// SecondaryAuthGate re-verifies a participant before sensitive operations,
// independently of the primary login.
type SecondaryAuthGate struct {
	passwords PasswordStore
	tokens    TokenStore
	ttl       time.Duration
	cost      int
	now       func() time.Time
	logger    *slog.Logger
}

// GateOption customizes a SecondaryAuthGate.
type GateOption func(*SecondaryAuthGate)

func WithTokenTTL(ttl time.Duration) GateOption {
	return func(g *SecondaryAuthGate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithBcryptCost sets the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) GateOption {
	return func(g *SecondaryAuthGate) { g.cost = cost }
}

func WithGateClock(now func() time.Time) GateOption {
	return func(g *SecondaryAuthGate) { g.now = now }
}

func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *SecondaryAuthGate) { g.logger = logger }
}

func NewSecondaryAuthGate(passwords PasswordStore, tokens TokenStore, opts ...GateOption) *SecondaryAuthGate {
	g := &SecondaryAuthGate{
		passwords: passwords,
		tokens:    tokens,
		ttl:       DefaultSecondaryTokenTTL,
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "secondary-auth"))
	return g
}

// SetPassword stores a new secondary password for participantID.
func (g *SecondaryAuthGate) SetPassword(ctx context.Context, participantID, password string) error {
	if participantID == "" {
		return domain.ErrParticipantNotFound
	}
	if password == "" {
		return domain.ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return fmt.Errorf("hash secondary password: %w", err)
	}
	return g.passwords.SetPasswordHash(ctx, participantID, hash)
}

// ChangePassword sets the secondary password. Once one exists, current must match it.
func (g *SecondaryAuthGate) ChangePassword(ctx context.Context, participantID, current, next string) error {
	if participantID == "" {
		return domain.ErrParticipantNotFound
	}
	hash, err := g.passwords.PasswordHash(ctx, participantID)
	switch {
	case errors.Is(err, domain.ErrNoPassword):
		return g.SetPassword(ctx, participantID, next)
	case err != nil:
		return err
	}
	if err := g.compare(hash, participantID, current); err != nil {
		return err
	}
	return g.SetPassword(ctx, participantID, next)
}

// Issue verifies the secondary password and returns a short-lived single-use token.
func (g *SecondaryAuthGate) Issue(ctx context.Context, participantID, password string) (domain.SecondaryAuthToken, error) {
	hash, err := g.passwords.PasswordHash(ctx, participantID)
	if err != nil {
		return domain.SecondaryAuthToken{}, err
	}
	if err := g.compare(hash, participantID, password); err != nil {
		return domain.SecondaryAuthToken{}, err
	}

	now := g.now()
	token := domain.SecondaryAuthToken{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(g.ttl),
		Verified:      true,
	}
	if err := g.tokens.Save(ctx, token); err != nil {
		return domain.SecondaryAuthToken{}, fmt.Errorf("save secondary token: %w", err)
	}
	return token, nil
}

// Check verifies a token without consuming it.
func (g *SecondaryAuthGate) Check(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error) {
	if tokenID == "" {
		return domain.SecondaryAuthToken{}, domain.ErrTokenMissing
	}
	token, err := g.tokens.Get(ctx, participantID, tokenID)
	if err != nil {
		return domain.SecondaryAuthToken{}, err
	}
	return token, g.validate(token, participantID)
}

// Consume verifies and invalidates a token. Of several concurrent calls with the same
// token at most one succeeds; the others get domain.ErrTokenExpired. A token presented
// by another participant is left in place.
func (g *SecondaryAuthGate) Consume(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error) {
	if tokenID == "" {
		return domain.SecondaryAuthToken{}, domain.ErrTokenMissing
	}
	token, err := g.tokens.Take(ctx, participantID, tokenID)
	if err != nil {
		return domain.SecondaryAuthToken{}, err
	}
	return token, g.validate(token, participantID)
}

func (g *SecondaryAuthGate) validate(token domain.SecondaryAuthToken, participantID string) error {
	if token.ParticipantID != participantID {
		return domain.ErrTokenForeign
	}
	if !token.Valid(g.now()) {
		return domain.ErrTokenExpired
	}
	return nil
}

func (g *SecondaryAuthGate) compare(hash []byte, participantID, password string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		g.logger.Warn("secondary password mismatch", slog.String("participant", participantID))
		return domain.ErrWrongPassword
	}
	return fmt.Errorf("compare secondary password: %w", err)
}
