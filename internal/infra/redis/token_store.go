package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-session-service/internal/domain"
)

// TokenStore keeps secondary auth tokens in Redis with a TTL matching their expiry.
// Keys are namespaced by participant, so a token id presented by anyone else never
// resolves. Take uses GETDEL so a token is handed out at most once across instances.
type TokenStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client, now: time.Now}
}

func (s *TokenStore) Save(ctx context.Context, token domain.SecondaryAuthToken) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return domain.ErrTokenExpired
	}
	if err := s.client.Set(ctx, s.key(token.ParticipantID, token.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error) {
	return s.decode(s.client.Get(ctx, s.key(participantID, tokenID)).Result())
}

func (s *TokenStore) Take(ctx context.Context, participantID, tokenID string) (domain.SecondaryAuthToken, error) {
	return s.decode(s.client.GetDel(ctx, s.key(participantID, tokenID)).Result())
}

func (s *TokenStore) decode(raw string, err error) (domain.SecondaryAuthToken, error) {
	if errors.Is(err, redis.Nil) {
		return domain.SecondaryAuthToken{}, domain.ErrTokenExpired
	}
	if err != nil {
		return domain.SecondaryAuthToken{}, fmt.Errorf("load token: %w", err)
	}
	var token domain.SecondaryAuthToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return domain.SecondaryAuthToken{}, fmt.Errorf("decode token: %w", err)
	}
	return token, nil
}

func (s *TokenStore) key(participantID, tokenID string) string {
	return "auth:secondary:" + participantID + ":" + tokenID
}
