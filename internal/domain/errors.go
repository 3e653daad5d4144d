package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every domain error wraps exactly one of these so transports can
// classify with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrStateConflict       = errors.New("state conflict")
	ErrAuthRequired        = errors.New("secondary authentication required")
	ErrAuthFailure         = errors.New("secondary authentication failed")
	ErrInsufficientBalance = errors.New("insufficient point balance")
	ErrSessionClosed       = errors.New("quiz session is closed")
)

var (
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = fmt.Errorf("%w: quiz session not found", ErrValidation)
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = fmt.Errorf("%w: participant not found in quiz", ErrValidation)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("%w: quiz not found", ErrValidation)
	// ErrQuestionNotFound indicates a submitted question number is invalid.
	ErrQuestionNotFound = fmt.Errorf("%w: question not found", ErrValidation)

	ErrInvalidAmount              = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrUnknownPointType           = fmt.Errorf("%w: unknown point transaction type", ErrValidation)
	ErrEmptyMessage               = fmt.Errorf("%w: message must not be empty", ErrValidation)
	ErrEmptyPassword              = fmt.Errorf("%w: password must not be empty", ErrValidation)
	ErrUnknownFriendRequestStatus = fmt.Errorf("%w: unknown friend request status", ErrValidation)
)

var (
	// ErrInvalidState is returned when an operation is not legal in the current phase.
	ErrInvalidState   = fmt.Errorf("%w: operation not allowed in current session phase", ErrStateConflict)
	ErrNoParticipants = fmt.Errorf("%w: session has no participants", ErrStateConflict)
	ErrNotHost        = fmt.Errorf("%w: only the host can control the session", ErrStateConflict)

	ErrDeadlinePassed = fmt.Errorf("%w: deadline passed", ErrSessionClosed)
)

var (
	ErrTokenMissing = fmt.Errorf("%w: token missing", ErrAuthRequired)
	ErrTokenExpired = fmt.Errorf("%w: token expired or already used", ErrAuthRequired)
	ErrTokenForeign = fmt.Errorf("%w: token issued to another participant", ErrAuthRequired)

	ErrWrongPassword = fmt.Errorf("%w: wrong secondary password", ErrAuthFailure)
	ErrNoPassword    = fmt.Errorf("%w: no secondary password set", ErrAuthFailure)
)
