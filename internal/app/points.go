package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
)

// DefaultPointsPerCorrect is the reward schedule: points per correct answer.
const DefaultPointsPerCorrect = 10

// TransactionStore is the append-only point log. Balances are always derived from it.
type TransactionStore interface {
	// InsertReward stores tx unless a transaction with the same idempotency key exists.
	// It returns the stored transaction and whether it was created by this call.
	InsertReward(ctx context.Context, tx domain.PointTransaction) (domain.PointTransaction, bool, error)
	// AppendUse stores tx if the participant's balance covers tx.Amount, atomically with
	// the balance check. Otherwise it returns domain.ErrInsufficientBalance.
	AppendUse(ctx context.Context, tx domain.PointTransaction) (domain.PointTransaction, error)
	Balance(ctx context.Context, participantID string) (int, error)
	History(ctx context.Context, participantID string, q domain.PointHistoryQuery) ([]domain.PointTransaction, error)
}

// TokenConsumer authorizes a protected operation with a secondary token.
type TokenConsumer interface {
	Consume(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error)
}

// PointAwardService turns finished sessions into REWARD transactions and guards
// spending behind the secondary auth gate.
type PointAwardService struct {
	store      TransactionStore
	gate       TokenConsumer
	perCorrect int
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type PointsOption func(*PointAwardService)

func WithPointsPerCorrect(n int) PointsOption {
	return func(s *PointAwardService) {
		if n > 0 {
			s.perCorrect = n
		}
	}
}

func WithPointsClock(now func() time.Time) PointsOption {
	return func(s *PointAwardService) { s.now = now }
}

func WithPointsLogger(logger *slog.Logger) PointsOption {
	return func(s *PointAwardService) { s.logger = logger }
}

func WithPointsMetrics(m *metrics.Metrics) PointsOption {
	return func(s *PointAwardService) { s.metrics = m }
}

func NewPointAwardService(store TransactionStore, gate TokenConsumer, opts ...PointsOption) *PointAwardService {
	s := &PointAwardService{
		store:      store,
		gate:       gate,
		perCorrect: DefaultPointsPerCorrect,
		now:        time.Now,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "points"))
	return s
}

// RewardAmount is the reward for a final score.
func (s *PointAwardService) RewardAmount(score int) int {
	return score * s.perCorrect
}

// Finalize issues one REWARD per participant. Calling it again for the same session
// returns the existing transactions instead of creating new ones.
func (s *PointAwardService) Finalize(ctx context.Context, standing domain.FinalStanding) ([]domain.PointTransaction, error) {
	out := make([]domain.PointTransaction, 0, len(standing.Standings))
	for _, entry := range standing.Standings {
		tx := domain.PointTransaction{
			ID:             uuid.NewString(),
			SessionID:      standing.SessionID,
			ParticipantID:  entry.UserID,
			Amount:         s.RewardAmount(entry.Score),
			Kind:           domain.KindReward,
			IdempotencyKey: domain.RewardKey(standing.SessionID, entry.UserID),
			CreatedAt:      s.now(),
		}
		stored, created, err := s.store.InsertReward(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("insert reward for %s: %w", entry.UserID, err)
		}
		if created {
			s.metrics.Reward(stored.Amount)
			s.logger.Info("reward issued",
				slog.String("session", standing.SessionID),
				slog.String("participant", entry.UserID),
				slog.Int("amount", stored.Amount))
		}
		out = append(out, stored)
	}
	return out, nil
}

// Spend consumes the participant's secondary token and appends a USE transaction.
// Token failures are returned untouched.
func (s *PointAwardService) Spend(ctx context.Context, participantID string, amount int, tokenID string) (domain.PointTransaction, error) {
	if amount <= 0 {
		s.metrics.Spend("invalid", 0)
		return domain.PointTransaction{}, domain.ErrInvalidAmount
	}
	token, err := s.gate.Consume(ctx, participantID, tokenID)
	if err != nil {
		s.metrics.Spend("unauthorized", 0)
		return domain.PointTransaction{}, err
	}

	tx, err := s.store.AppendUse(ctx, domain.PointTransaction{
		ID:             uuid.NewString(),
		ParticipantID:  participantID,
		Amount:         amount,
		Kind:           domain.KindUse,
		IdempotencyKey: domain.SpendKey(token.ID),
		CreatedAt:      s.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.metrics.Spend("insufficient", 0)
			return domain.PointTransaction{}, err
		}
		return domain.PointTransaction{}, fmt.Errorf("append use: %w", err)
	}
	s.metrics.Spend("ok", amount)
	return tx, nil
}

// Balance is REWARD total minus USE total.
func (s *PointAwardService) Balance(ctx context.Context, participantID string) (int, error) {
	return s.store.Balance(ctx, participantID)
}

// History lists a participant's transactions, newest first.
func (s *PointAwardService) History(ctx context.Context, participantID string, q domain.PointHistoryQuery) ([]domain.PointTransaction, error) {
	return s.store.History(ctx, participantID, q)
}
