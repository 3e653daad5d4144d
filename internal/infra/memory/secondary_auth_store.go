package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// PasswordStore keeps secondary password hashes in memory.
type PasswordStore struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

func NewPasswordStore() *PasswordStore {
	return &PasswordStore{hashes: make(map[string][]byte)}
}

func (s *PasswordStore) SetPasswordHash(_ context.Context, participantID string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[participantID] = append([]byte(nil), hash...)
	return nil
}

func (s *PasswordStore) PasswordHash(_ context.Context, participantID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.hashes[participantID]
	if !ok {
		return nil, domain.ErrNoPassword
	}
	return hash, nil
}

// TokenStore keeps secondary auth tokens in memory. Tokens already expired when a
// newer one is issued are swept on Save.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]domain.SecondaryAuthToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]domain.SecondaryAuthToken)}
}

func (s *TokenStore) Save(_ context.Context, token domain.SecondaryAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tokens {
		if !token.IssuedAt.Before(t.ExpiresAt) {
			delete(s.tokens, id)
		}
	}
	s.tokens[token.ID] = token
	return nil
}

func (s *TokenStore) Get(_ context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(participantID, tokenID)
}

// Take removes the token only when it belongs to participantID.
func (s *TokenStore) Take(_ context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, err := s.lookupLocked(participantID, tokenID)
	if err != nil {
		return domain.SecondaryAuthToken{}, err
	}
	delete(s.tokens, tokenID)
	return token, nil
}

func (s *TokenStore) lookupLocked(participantID, tokenID string) (domain.SecondaryAuthToken, error) {
	token, ok := s.tokens[tokenID]
	if !ok {
		return domain.SecondaryAuthToken{}, domain.ErrTokenExpired
	}
	if token.ParticipantID != participantID {
		return domain.SecondaryAuthToken{}, domain.ErrTokenForeign
	}
	return token, nil
}
