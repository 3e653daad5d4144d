package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
)

// Finalizer converts a finished session into point rewards. It must be idempotent.
type Finalizer interface {
	Finalize(ctx context.Context, standing domain.FinalStanding) ([]domain.PointTransaction, error)
}

// SessionOptions configures a Session. Zero values are valid.
type SessionOptions struct {
	// Deadline, when positive, finishes the session this long after Start.
	Deadline  time.Duration
	Now       func() time.Time
	Finalizer Finalizer
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Session is the coordinator of one quiz game. A single mutex serializes every
// mutation so phase, answered sets, ledger and chat sequence change atomically.
type Session struct {
	id        string
	quiz      domain.Quiz
	createdAt time.Time
	now       func() time.Time
	finalizer Finalizer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	ttl       time.Duration

	mu           sync.Mutex
	phase        domain.Phase
	current      int
	host         string
	participants map[string]*domain.Participant
	ledger       *ScoreLedger
	chat         *Broadcaster
	deadline     time.Time
	timer        *time.Timer
	rewards      []domain.PointTransaction
	released     bool
}

// errSessionReleased tells a joiner that its session was dropped from the store and a
// fresh one must be fetched.
var errSessionReleased = errors.New("session released")

// NewSession creates a WAITING session over quiz. Questions are numbered by order
// when the quiz does not number them.
func NewSession(id string, quiz domain.Quiz, opts SessionOptions) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		id:           id,
		quiz:         quiz.Normalize(),
		createdAt:    now(),
		now:          now,
		finalizer:    opts.Finalizer,
		logger:       logger.With(slog.String("session", id), slog.String("quiz", quiz.ID)),
		metrics:      opts.Metrics,
		ttl:          opts.Deadline,
		phase:        domain.PhaseWaiting,
		participants: make(map[string]*domain.Participant),
		ledger:       NewScoreLedger(),
		chat:         NewBroadcaster(id),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Host is the first participant to join.
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Idle reports whether nobody is connected and the session holds no live game.
func (s *Session) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked()
}

func (s *Session) idleLocked() bool {
	if s.chat.observerCount() > 0 {
		return false
	}
	return len(s.participants) == 0 || s.phase == domain.PhaseFinished
}

// Release closes the session if it is idle and reports whether it did. A released
// session refuses further joins, so stores drop it only when Release returns true.
func (s *Session) Release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || !s.idleLocked() {
		return false
	}
	s.released = true
	s.stopTimerLocked()
	s.chat.closeAll()
	return true
}

// Close detaches every observer and stops the deadline timer.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.chat.closeAll()
}

// Join registers or refreshes a participant. Joining a finished session fails.
func (s *Session) Join(userID, displayName string) (domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return domain.Leaderboard{}, errSessionReleased
	}
	if s.phase == domain.PhaseFinished {
		return domain.Leaderboard{}, domain.ErrSessionClosed
	}
	if participant, ok := s.participants[userID]; ok {
		participant.DisplayName = displayName
	} else {
		s.participants[userID] = &domain.Participant{
			UserID:      userID,
			DisplayName: displayName,
			JoinedAt:    s.now(),
			Answered:    make(map[int]domain.SubmissionResult),
		}
		if s.host == "" {
			s.host = userID
		}
	}
	s.ledger.Register(userID, displayName)
	s.publishLocked(displayName, displayName+" joined", domain.EventJoin, nil)
	return s.snapshotLocked(), nil
}

// Leave announces a departure. Before the game starts the participant is dropped;
// afterwards the score is kept for the final standing.
func (s *Session) Leave(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[userID]
	if !ok {
		return
	}
	if s.phase == domain.PhaseWaiting {
		delete(s.participants, userID)
		s.ledger.Remove(userID)
		if s.host == userID {
			s.host = s.ledger.First()
		}
	}
	s.publishLocked(participant.DisplayName, participant.DisplayName+" left", domain.EventLeave, nil)
}

// Subscribe attaches an observer for userID that sees events published from now on.
func (s *Session) Subscribe(userID string) (*Observer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[userID]; !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return s.chat.subscribe(userID), nil
}

// Unsubscribe detaches o and closes its event channel.
func (s *Session) Unsubscribe(o *Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat.unsubscribe(o)
}

// Chat relays a TALK message from a participant.
func (s *Session) Chat(userID, message string) (domain.ChatEvent, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.ChatEvent{}, domain.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	participant, ok := s.participants[userID]
	if !ok {
		return domain.ChatEvent{}, domain.ErrParticipantNotFound
	}
	return s.publishLocked(participant.DisplayName, message, domain.EventTalk, nil), nil
}

// Start moves WAITING to IN_PROGRESS and arms the deadline, if any.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseWaiting {
		return domain.ErrInvalidState
	}
	if len(s.participants) == 0 {
		return domain.ErrNoParticipants
	}
	if len(s.quiz.Questions) == 0 {
		return domain.ErrInvalidState
	}
	s.phase = domain.PhaseInProgress
	s.current = 0
	if s.ttl > 0 {
		s.deadline = s.now().Add(s.ttl)
		s.timer = time.AfterFunc(s.ttl, s.expire)
	}
	s.metrics.Transition(string(s.phase))
	s.logger.Info("quiz session started", slog.Int("participants", len(s.participants)))
	s.publishLocked(domain.SystemSender, s.questionAnnouncementLocked(), domain.EventSystem, nil)
	return nil
}

// Submit scores one answer exactly once per (participant, question). A repeated
// submission returns the first result unchanged.
func (s *Session) Submit(ctx context.Context, userID string, submission domain.AnswerSubmission) (domain.SubmissionResult, domain.Leaderboard, error) {
	// Questions never change after creation, so lookup and evaluation run unlocked.
	question, found := s.question(submission.QuestionNumber)
	var evaluated domain.SubmissionResult
	if found {
		evaluated = Evaluate(question, submission.Answer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseWaiting:
		s.metrics.Submission("rejected")
		return domain.SubmissionResult{}, domain.Leaderboard{}, domain.ErrInvalidState
	case domain.PhaseFinished:
		s.metrics.Submission("rejected")
		return domain.SubmissionResult{}, domain.Leaderboard{}, domain.ErrSessionClosed
	}
	if !s.deadline.IsZero() && !s.now().Before(s.deadline) {
		s.metrics.Submission("rejected")
		return domain.SubmissionResult{}, domain.Leaderboard{}, domain.ErrDeadlinePassed
	}
	participant, ok := s.participants[userID]
	if !ok {
		return domain.SubmissionResult{}, domain.Leaderboard{}, domain.ErrParticipantNotFound
	}
	if !found {
		return domain.SubmissionResult{}, domain.Leaderboard{}, domain.ErrQuestionNotFound
	}
	if cached, ok := participant.Answered[question.Number]; ok {
		s.metrics.Submission("duplicate")
		return cached, s.snapshotLocked(), nil
	}

	participant.Answered[question.Number] = evaluated
	score := s.ledger.Apply(userID, evaluated.Correct)
	if evaluated.Correct {
		s.metrics.Submission("correct")
	} else {
		s.metrics.Submission("incorrect")
	}
	s.logger.Debug("answer scored",
		slog.String("user", userID),
		slog.Int("question", question.Number),
		slog.Bool("correct", evaluated.Correct),
		slog.Int("score", score))

	lb := s.snapshotLocked()
	msg := fmt.Sprintf("%s answered question %d", participant.DisplayName, question.Number)
	s.publishLocked(domain.SystemSender, msg, domain.EventResult, lb.Entries)
	return evaluated, lb, nil
}

// Advance moves to the next question; passing the last one finishes the session.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseInProgress {
		return domain.ErrInvalidState
	}
	s.current++
	if s.current >= len(s.quiz.Questions) {
		return s.finishLocked(ctx, "all questions answered")
	}
	s.publishLocked(domain.SystemSender, s.questionAnnouncementLocked(), domain.EventSystem, nil)
	return nil
}

// Finish terminates the game early. Unanswered questions count as incorrect.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseInProgress {
		return domain.ErrInvalidState
	}
	return s.finishLocked(ctx, "finished early")
}

// Finalize re-runs point awarding for a finished session. Awarding is idempotent, so
// repeated calls return the transactions created by the first one.
func (s *Session) Finalize(ctx context.Context) ([]domain.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseFinished {
		return nil, domain.ErrInvalidState
	}
	if err := s.finalizeLocked(ctx); err != nil {
		return nil, err
	}
	return append([]domain.PointTransaction(nil), s.rewards...), nil
}

// Rewards returns the transactions produced by the last successful finalize.
func (s *Session) Rewards() []domain.PointTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PointTransaction(nil), s.rewards...)
}

// Leaderboard returns the current ranking.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Result returns the cached result of userID for question number n.
func (s *Session) Result(userID string, n int) (domain.SubmissionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	participant, ok := s.participants[userID]
	if !ok {
		return domain.SubmissionResult{}, false
	}
	result, ok := participant.Answered[n]
	return result, ok
}

func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseInProgress {
		return
	}
	s.logger.Info("quiz session deadline reached")
	if err := s.finishLocked(context.Background(), "time is up"); err != nil {
		s.logger.Error("finish on deadline failed", slog.Any("error", err))
	}
}

func (s *Session) finishLocked(ctx context.Context, reason string) error {
	s.phase = domain.PhaseFinished
	s.stopTimerLocked()
	for _, participant := range s.participants {
		for _, q := range s.quiz.Questions {
			if _, ok := participant.Answered[q.Number]; ok {
				continue
			}
			participant.Answered[q.Number] = domain.SubmissionResult{
				QuestionNumber: q.Number,
				Correct:        false,
				CorrectAnswer:  q.Answer,
				Message:        resultMessage(q, false),
			}
		}
	}
	s.metrics.Transition(string(s.phase))
	s.logger.Info("quiz session finished", slog.String("reason", reason))
	s.publishLocked(domain.SystemSender, "quiz finished: "+reason, domain.EventSystem, s.ledger.Snapshot())
	return s.finalizeLocked(ctx)
}

func (s *Session) finalizeLocked(ctx context.Context) error {
	if s.finalizer == nil {
		return nil
	}
	standing := domain.FinalStanding{
		SessionID:  s.id,
		Standings:  s.ledger.Snapshot(),
		FinishedAt: s.now(),
	}
	rewards, err := s.finalizer.Finalize(ctx, standing)
	if err != nil {
		s.logger.Error("finalize rewards failed", slog.Any("error", err))
		return fmt.Errorf("finalize rewards: %w", err)
	}
	s.rewards = rewards
	return nil
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) publishLocked(sender, message string, typ domain.EventType, standings []domain.Standing) domain.ChatEvent {
	s.metrics.ChatEvent(string(typ))
	return s.chat.publish(sender, message, typ, standings)
}

func (s *Session) questionAnnouncementLocked() string {
	q := s.quiz.Questions[s.current]
	if q.Prompt == "" {
		return fmt.Sprintf("question %d of %d", q.Number, len(s.quiz.Questions))
	}
	return fmt.Sprintf("question %d of %d: %s", q.Number, len(s.quiz.Questions), q.Prompt)
}

func (s *Session) question(n int) (domain.Question, bool) {
	for _, q := range s.quiz.Questions {
		if q.Number == n {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (s *Session) snapshotLocked() domain.Leaderboard {
	return domain.Leaderboard{
		QuizID:    s.quiz.ID,
		SessionID: s.id,
		Phase:     s.phase,
		Entries:   s.ledger.Snapshot(),
		UpdatedAt: s.now(),
	}
}
