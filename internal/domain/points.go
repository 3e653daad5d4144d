package domain

import (
	"math"
	"strings"
	"time"
)

// TransactionKind distinguishes earned points from spent points.
type TransactionKind string

const (
	KindReward TransactionKind = "REWARD"
	KindUse    TransactionKind = "USE"
)

// ParseTransactionKind accepts REWARD or USE in any case.
func ParseTransactionKind(raw string) (TransactionKind, error) {
	switch TransactionKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindReward:
		return KindReward, nil
	case KindUse:
		return KindUse, nil
	}
	return "", ErrUnknownPointType
}

// PointTransaction is one entry of the append-only point log.
type PointTransaction struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"sessionId,omitempty"`
	ParticipantID  string          `json:"participantId"`
	Amount         int             `json:"amount"`
	Kind           TransactionKind `json:"kind"`
	IdempotencyKey string          `json:"idempotencyKey"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// RewardKey is the idempotency key of a session reward for one participant.
func RewardKey(sessionID, participantID string) string {
	return sessionID + ":" + participantID + ":" + string(KindReward)
}

// SpendKey is the idempotency key of a spend authorized by a secondary token.
func SpendKey(tokenID string) string {
	return string(KindUse) + ":" + tokenID
}

// DefaultPageSize is used when a history query asks for a non-positive page size.
const DefaultPageSize = 10

// PointHistoryQuery filters a participant's point history. Kind nil means all kinds.
type PointHistoryQuery struct {
	Kind *TransactionKind
	Page int
	Size int
}

// NewPointHistoryQuery builds a normalized query. Out-of-range page and size values
// are clamped; an unrecognized kind is rejected.
func NewPointHistoryQuery(kind string, page, size int) (PointHistoryQuery, error) {
	q := PointHistoryQuery{Page: page, Size: size}
	if strings.TrimSpace(kind) != "" {
		k, err := ParseTransactionKind(kind)
		if err != nil {
			return PointHistoryQuery{}, err
		}
		q.Kind = &k
	}
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	// Offset()+Size must stay within int.
	if last := math.MaxInt/q.Size - 1; q.Page > last {
		q.Page = last
	}
	return q, nil
}

// Offset is the number of rows skipped before the requested page.
func (q PointHistoryQuery) Offset() int {
	return q.Page * q.Size
}

// Matches reports whether tx passes the kind filter.
func (q PointHistoryQuery) Matches(tx PointTransaction) bool {
	return q.Kind == nil || *q.Kind == tx.Kind
}

// SecondaryAuthToken proves a recent secondary password check.
type SecondaryAuthToken struct {
	ID            string    `json:"token"`
	ParticipantID string    `json:"participantId"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Verified      bool      `json:"verified"`
}

// Valid reports whether the token may still authorize an operation at now.
func (t SecondaryAuthToken) Valid(now time.Time) bool {
	return t.Verified && now.Before(t.ExpiresAt)
}
