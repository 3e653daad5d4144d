package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"quiz-session-service/internal/domain"
)

const (
	headerParticipant = "X-Participant-ID"
	headerSecondary   = "X-Secondary-Token"
)

type contextKey string

const (
	participantKey contextKey = "participant"
	tokenKey       contextKey = "secondary-token"
)

// guard checks one precondition of an operation and may enrich the request context.
type guard func(r *http.Request) (*http.Request, error)

// TokenChecker verifies a secondary token without consuming it.
type TokenChecker interface {
	Check(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error)
}

// guarded runs guards in order and calls next only when all of them pass.
func guarded(next http.HandlerFunc, guards ...guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, g := range guards {
			var err error
			if r, err = g(r); err != nil {
				writeError(w, err)
				return
			}
		}
		next(w, r)
	}
}

// requireParticipant takes the caller's identity from the primary login layer.
func requireParticipant(r *http.Request) (*http.Request, error) {
	id := strings.TrimSpace(r.Header.Get(headerParticipant))
	if id == "" {
		return nil, newAuthRequiredError("participant id required")
	}
	return r.WithContext(context.WithValue(r.Context(), participantKey, id)), nil
}

// requireSecondaryPassword marks an operation as needing a fresh secondary password
// check. It must follow requireParticipant. The token is only checked here; the
// operation consumes it.
func requireSecondaryPassword(gate TokenChecker, description string, logger *slog.Logger) guard {
	return func(r *http.Request) (*http.Request, error) {
		participantID := participantFrom(r.Context())
		tokenID := strings.TrimSpace(r.Header.Get(headerSecondary))
		if _, err := gate.Check(r.Context(), participantID, tokenID); err != nil {
			logger.Info("secondary password required",
				slog.String("operation", description),
				slog.String("participant", participantID),
				slog.Any("error", err))
			return nil, err
		}
		return r.WithContext(context.WithValue(r.Context(), tokenKey, tokenID)), nil
	}
}

func participantFrom(ctx context.Context) string {
	id, _ := ctx.Value(participantKey).(string)
	return id
}

func tokenFrom(ctx context.Context) string {
	id, _ := ctx.Value(tokenKey).(string)
	return id
}
