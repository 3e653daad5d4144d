package domain

import "time"

// Phase is the lifecycle state of a quiz session.
type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseFinished   Phase = "FINISHED"
)

// Participant represents a quiz participant. The running score lives in the session's
// score ledger.
type Participant struct {
	UserID      string
	DisplayName string
	JoinedAt    time.Time
	// Answered caches the first result per question number.
	Answered map[int]SubmissionResult
}

// Standing is a snapshot-friendly view of a participant.
type Standing struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a quiz session.
type Leaderboard struct {
	QuizID    string     `json:"quizId"`
	SessionID string     `json:"sessionId"`
	Phase     Phase      `json:"phase"`
	Entries   []Standing `json:"entries"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AnswerSubmission is a participant's raw answer to one question.
type AnswerSubmission struct {
	QuestionNumber int
	Answer         string
}

// SubmissionResult summarizes the outcome of one answer for one participant.
type SubmissionResult struct {
	QuestionNumber int    `json:"questionNumber"`
	Correct        bool   `json:"correct"`
	CorrectAnswer  string `json:"correctAnswer"`
	Message        string `json:"message"`
}

// Question is a free-text question; Number is 1-based.
type Question struct {
	Number  int    `json:"number"`
	Prompt  string `json:"prompt"`
	Answer  string `json:"answer"`
	Message string `json:"message,omitempty"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Normalize fills in missing question numbers from the question order.
func (q Quiz) Normalize() Quiz {
	out := Quiz{ID: q.ID, Questions: make([]Question, len(q.Questions))}
	for i, question := range q.Questions {
		if question.Number <= 0 {
			question.Number = i + 1
		}
		out.Questions[i] = question
	}
	return out
}

// FinalStanding is the immutable result of a finished session handed to point awarding.
type FinalStanding struct {
	SessionID  string
	Standings  []Standing
	FinishedAt time.Time
}
