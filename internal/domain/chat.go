package domain

// EventType classifies chat events relayed to session participants.
type EventType string

const (
	EventTalk   EventType = "TALK"
	EventJoin   EventType = "JOIN"
	EventLeave  EventType = "LEAVE"
	EventSystem EventType = "SYSTEM"
	EventResult EventType = "RESULT"
)

// SystemSender is the sender name used for coordinator-generated events.
const SystemSender = "system"

// ChatEvent is one ordered event of a session. Sequence starts at 0 and never repeats.
type ChatEvent struct {
	SessionID string     `json:"sessionId"`
	Sender    string     `json:"sender"`
	Message   string     `json:"message"`
	Type      EventType  `json:"type"`
	Sequence  int64      `json:"sequence"`
	Standings []Standing `json:"standings,omitempty"`
}
