package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
)

// SessionRepository abstracts how live quiz sessions are tracked (in-memory, Redis, etc).
type SessionRepository interface {
	// GetOrCreate returns the session for quizID, calling build when there is none.
	GetOrCreate(quizID string, build func() *Session) *Session
	Get(quizID string) (*Session, bool)
	// DeleteIfIdle drops the session when Session.Release succeeds, under the same
	// lock GetOrCreate takes.
	DeleteIfIdle(quizID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	finalizer Finalizer
	deadline  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithSessionDeadline finishes every session d after it starts.
func WithSessionDeadline(d time.Duration) Option {
	return func(s *QuizService) { s.deadline = d }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *QuizService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *QuizService) { s.metrics = m }
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, finalizer Finalizer, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:  store,
		quizzes:   quizzes,
		finalizer: finalizer,
		now:       time.Now,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "quiz-service"))
	return s
}

// Join registers or refreshes a participant in a quiz session, creating the session
// on first join. The first participant becomes the host.
func (s *QuizService) Join(ctx context.Context, quizID, userID, displayName string) (domain.Leaderboard, error) {
	// Users cannot join unknown quizzes.
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	build := func() *Session {
		id := quizID + "-" + uuid.NewString()
		s.logger.Info("quiz session created", slog.String("quiz", quizID), slog.String("session", id))
		return NewSession(id, quiz, SessionOptions{
			Deadline:  s.deadline,
			Now:       s.now,
			Finalizer: s.finalizer,
			Logger:    s.logger,
			Metrics:   s.metrics,
		})
	}
	for {
		// A session released between lookup and join is already gone from the
		// store, so the next lookup builds a fresh one.
		lb, err := s.sessions.GetOrCreate(quizID, build).Join(userID, displayName)
		if errors.Is(err, errSessionReleased) {
			continue
		}
		return lb, err
	}
}

// Start begins the game. Only the host may start it.
func (s *QuizService) Start(_ context.Context, quizID, userID string) error {
	session, err := s.hostSession(quizID, userID)
	if err != nil {
		return err
	}
	return session.Start()
}

// SubmitAnswer scores an answer and returns the result and the updated leaderboard.
func (s *QuizService) SubmitAnswer(ctx context.Context, quizID, userID string, submission domain.AnswerSubmission) (domain.SubmissionResult, domain.Leaderboard, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return domain.SubmissionResult{}, domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	return session.Submit(ctx, userID, submission)
}

// Advance moves to the next question. Only the host may advance.
func (s *QuizService) Advance(ctx context.Context, quizID, userID string) error {
	session, err := s.hostSession(quizID, userID)
	if err != nil {
		return err
	}
	return session.Advance(ctx)
}

// Finish ends the game early. Only the host may finish it.
func (s *QuizService) Finish(ctx context.Context, quizID, userID string) error {
	session, err := s.hostSession(quizID, userID)
	if err != nil {
		return err
	}
	return session.Finish(ctx)
}

// Finalize re-runs point awarding for a finished session.
func (s *QuizService) Finalize(ctx context.Context, quizID string) ([]domain.PointTransaction, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Finalize(ctx)
}

// Chat relays a participant's message to everyone in the session.
func (s *QuizService) Chat(_ context.Context, quizID, userID, message string) (domain.ChatEvent, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return domain.ChatEvent{}, domain.ErrSessionNotFound
	}
	return session.Chat(userID, message)
}

// Leaderboard returns the current ranking of a session.
func (s *QuizService) Leaderboard(_ context.Context, quizID string) (domain.Leaderboard, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	return session.Leaderboard(), nil
}

// Subscribe returns a channel that receives the session's events in order.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, quizID, userID string) (<-chan domain.ChatEvent, func(), error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	observer, err := session.Subscribe(userID)
	if err != nil {
		return nil, nil, err
	}
	return observer.Events(), func() { session.Unsubscribe(observer) }, nil
}

// Leave announces a participant's departure and drops the session once idle.
func (s *QuizService) Leave(_ context.Context, quizID, userID string) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return
	}
	session.Leave(userID)
	if session.Idle() {
		s.sessions.DeleteIfIdle(quizID)
	}
}

func (s *QuizService) hostSession(quizID, userID string) (*Session, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Host() != userID {
		return nil, domain.ErrNotHost
	}
	return session, nil
}
