package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/logging"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Sessions live in process so every mutation stays behind the session lock; Redis
// carries a liveness marker naming the current session id of each quiz.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "redis-session-store")),
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quizID string, build func() *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[quizID]; ok {
		return session
	}
	session := build()
	s.sessions[quizID] = session
	// The marker is advisory; sessions keep working without it.
	if err := s.client.Set(context.Background(), s.key(quizID), session.ID(), s.ttl).Err(); err != nil {
		s.logger.Warn("set session marker failed",
			slog.String("quiz", quizID),
			slog.String("session", session.ID()),
			slog.Any("error", err))
	}
	return session
}

func (s *SessionStore) Get(quizID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[quizID]
	return session, ok
}

func (s *SessionStore) DeleteIfIdle(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[quizID]
	if !ok {
		return
	}
	if !session.Release() {
		return
	}
	delete(s.sessions, quizID)
	if err := s.client.Del(context.Background(), s.key(quizID)).Err(); err != nil {
		s.logger.Warn("clear session marker failed", slog.String("quiz", quizID), slog.Any("error", err))
	}
}

func (s *SessionStore) key(quizID string) string {
	return "quiz:session:" + quizID
}
