// Package events fans session events out to the rest of the platform over
// NATS. In-lobby delivery (websockets) is handled by the gateway; this is
// the cross-service feed.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/TalexCK/GameVoting/internal/voting"
)

const subjectPrefix = "lobby.events"

// Envelope is the wire form of a session event.
type Envelope struct {
	EventID   uuid.UUID       `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Player    uuid.UUID       `json:"player,omitempty"`
	GameID    string          `json:"game_id,omitempty"`
	Seconds   int             `json:"seconds,omitempty"`
	Snapshot  voting.Snapshot `json:"snapshot"`
}

// NATSPublisher implements voting.Notifier by publishing envelopes to
// lobby.events.<type> subjects. Publishing is fire-and-forget: a failed
// publish is logged, never surfaced to the session machine.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Notify(ev voting.Event) {
	env := Envelope{
		EventID:   uuid.New(),
		EventType: string(ev.Type),
		Timestamp: time.Now().UTC(),
		Player:    ev.Player,
		GameID:    ev.GameID,
		Seconds:   ev.Seconds,
		Snapshot:  ev.Snapshot,
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event_type", env.EventType).Msg("failed to encode event")
		return
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, strings.ToLower(env.EventType))
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}

// Fanout forwards each event to every notifier in order.
type Fanout []voting.Notifier

func (f Fanout) Notify(ev voting.Event) {
	for _, n := range f {
		n.Notify(ev)
	}
}
