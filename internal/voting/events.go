package voting

import "github.com/google/uuid"

// EventType identifies a session event pushed to display layers.
type EventType string

const (
	EventPhaseChanged  EventType = "PhaseChanged"
	EventVoteRecorded  EventType = "VoteRecorded"
	EventReadyChanged  EventType = "ReadyChanged"
	EventCountdownTick EventType = "CountdownTick"
	EventVotingEnded   EventType = "VotingEnded"
	EventGameStarting  EventType = "GameStarting"
)

// Event is a session notification. The snapshot inside is immutable.
type Event struct {
	Type     EventType `json:"type"`
	Player   uuid.UUID `json:"player,omitempty"`
	GameID   string    `json:"game_id,omitempty"`
	Seconds  int       `json:"seconds,omitempty"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Notifier receives session events. Implementations must not block; the
// machine calls Notify outside its own lock but on latency-sensitive paths.
type Notifier interface {
	Notify(Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}
