package app

import (
	"sort"

	"quiz-session-service/internal/domain"
)

// ScoreLedger is the running tally of one session. It is not safe for concurrent use;
// the owning Session serializes access.
type ScoreLedger struct {
	order  []string
	names  map[string]string
	scores map[string]int
}

func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{
		names:  make(map[string]string),
		scores: make(map[string]int),
	}
}

// Register adds a participant at the end of the join order, or renames an existing one.
func (l *ScoreLedger) Register(userID, displayName string) {
	if _, ok := l.names[userID]; !ok {
		l.order = append(l.order, userID)
	}
	l.names[userID] = displayName
}

// Remove drops a participant that never scored. Used for leaves before the game starts.
func (l *ScoreLedger) Remove(userID string) {
	if _, ok := l.names[userID]; !ok {
		return
	}
	delete(l.names, userID)
	delete(l.scores, userID)
	for i, id := range l.order {
		if id == userID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Apply adds one point when correct and returns the participant's score.
func (l *ScoreLedger) Apply(userID string, correct bool) int {
	if correct {
		l.scores[userID]++
	}
	return l.scores[userID]
}

// First returns the earliest joined participant still registered, or "".
func (l *ScoreLedger) First() string {
	if len(l.order) == 0 {
		return ""
	}
	return l.order[0]
}

func (l *ScoreLedger) Score(userID string) int {
	return l.scores[userID]
}

// Snapshot ranks participants by score descending, ties broken by join order.
func (l *ScoreLedger) Snapshot() []domain.Standing {
	entries := make([]domain.Standing, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, domain.Standing{
			UserID:      id,
			DisplayName: l.names[id],
			Score:       l.scores[id],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
