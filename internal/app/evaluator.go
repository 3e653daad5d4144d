package app

import (
	"strings"

	"quiz-session-service/internal/domain"
)

const (
	defaultCorrectMessage   = "Correct!"
	defaultIncorrectMessage = "Not quite."
)

// Evaluate compares a raw answer with the question's answer, ignoring surrounding
// whitespace and case. It has no side effects and is safe for concurrent use.
func Evaluate(question domain.Question, rawAnswer string) domain.SubmissionResult {
	correct := strings.EqualFold(strings.TrimSpace(rawAnswer), strings.TrimSpace(question.Answer))
	return domain.SubmissionResult{
		QuestionNumber: question.Number,
		Correct:        correct,
		CorrectAnswer:  question.Answer,
		Message:        resultMessage(question, correct),
	}
}

func resultMessage(question domain.Question, correct bool) string {
	if question.Message != "" {
		return question.Message
	}
	if correct {
		return defaultCorrectMessage
	}
	return defaultIncorrectMessage
}
