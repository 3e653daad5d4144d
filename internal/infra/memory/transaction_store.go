package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-service/internal/domain"
)

// TransactionStore is an in-memory append-only point log.
type TransactionStore struct {
	mu    sync.Mutex
	log   []domain.PointTransaction
	byKey map[string]int
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{byKey: make(map[string]int)}
}

func (s *TransactionStore) InsertReward(_ context.Context, tx domain.PointTransaction) (domain.PointTransaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[tx.IdempotencyKey]; ok {
		return s.log[i], false, nil
	}
	s.appendLocked(tx)
	return tx, true, nil
}

func (s *TransactionStore) AppendUse(_ context.Context, tx domain.PointTransaction) (domain.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[tx.IdempotencyKey]; ok {
		return s.log[i], nil
	}
	if s.balanceLocked(tx.ParticipantID) < tx.Amount {
		return domain.PointTransaction{}, domain.ErrInsufficientBalance
	}
	s.appendLocked(tx)
	return tx, nil
}

func (s *TransactionStore) Balance(_ context.Context, participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(participantID), nil
}

// History returns matching transactions newest first, paged by q.
func (s *TransactionStore) History(_ context.Context, participantID string, q domain.PointHistoryQuery) ([]domain.PointTransaction, error) {
	s.mu.Lock()
	matches := make([]domain.PointTransaction, 0)
	for _, tx := range s.log {
		if tx.ParticipantID == participantID && q.Matches(tx) {
			matches = append(matches, tx)
		}
	}
	s.mu.Unlock()

	// Reverse log order is newest first even when timestamps tie.
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	start := q.Offset()
	if start < 0 || start >= len(matches) {
		return []domain.PointTransaction{}, nil
	}
	end := len(matches)
	if q.Size > 0 && q.Size < end-start {
		end = start + q.Size
	}
	return matches[start:end], nil
}

// Count returns how many transactions of kind exist for a session.
func (s *TransactionStore) Count(sessionID string, kind domain.TransactionKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.log {
		if tx.SessionID == sessionID && tx.Kind == kind {
			n++
		}
	}
	return n
}

func (s *TransactionStore) appendLocked(tx domain.PointTransaction) {
	s.byKey[tx.IdempotencyKey] = len(s.log)
	s.log = append(s.log, tx)
}

func (s *TransactionStore) balanceLocked(participantID string) int {
	balance := 0
	for _, tx := range s.log {
		if tx.ParticipantID != participantID {
			continue
		}
		switch tx.Kind {
		case domain.KindReward:
			balance += tx.Amount
		case domain.KindUse:
			balance -= tx.Amount
		}
	}
	return balance
}
