// Package game turns a finished vote into a running game: it records the
// session, provisions a backend instance and moves the voters onto it.
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/TalexCK/GameVoting/internal/games"
	"github.com/TalexCK/GameVoting/internal/history"
	"github.com/TalexCK/GameVoting/internal/provision"
	"github.com/TalexCK/GameVoting/internal/voting"
)

// Session is the slice of the session machine the coordinator drives.
type Session interface {
	SetCurrentInstance(ref string)
	CurrentInstance() string
	Clear()
}

// NameResolver maps player ids to the names the fleet routes by.
type NameResolver interface {
	PlayerName(id uuid.UUID) (string, bool)
}

// Config holds the coordinator tunables.
type Config struct {
	// TeleportCountdownSec is how long players get before migration.
	TeleportCountdownSec int
	// ProvisionTimeout bounds the whole provision call.
	ProvisionTimeout time.Duration
}

// DefaultConfig mirrors the production lobby defaults.
func DefaultConfig() Config {
	return Config{
		TeleportCountdownSec: 60,
		ProvisionTimeout:     2 * time.Minute,
	}
}

// Coordinator implements voting.GameStarter.
type Coordinator struct {
	cfg         Config
	clock       clockwork.Clock
	session     Session
	registry    *games.Registry
	provisioner provision.Provisioner
	store       history.Store
	names       NameResolver
	notifier    voting.Notifier
	timer       *voting.CountdownTimer
}

func NewCoordinator(cfg Config, clock clockwork.Clock, session Session, registry *games.Registry,
	provisioner provision.Provisioner, store history.Store, names NameResolver, notifier voting.Notifier) *Coordinator {
	if notifier == nil {
		notifier = voting.NopNotifier{}
	}
	return &Coordinator{
		cfg:         cfg,
		clock:       clock,
		session:     session,
		registry:    registry,
		provisioner: provisioner,
		store:       store,
		names:       names,
		notifier:    notifier,
		timer:       voting.NewCountdownTimer(clock),
	}
}

// BeginGameStart runs the full launch sequence. A history failure is logged
// and ignored; a provisioning failure resets the session so the lobby can
// vote again.
func (c *Coordinator) BeginGameStart(req voting.StartRequest) {
	gameDef, ok := c.registry.Get(req.GameID)
	if !ok {
		log.Error().Str("game", req.GameID).Msg("winning game vanished from config, resetting session")
		c.session.Clear()
		return
	}

	c.saveHistory(req, gameDef)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ProvisionTimeout)
	defer cancel()

	instanceRef, err := c.provisioner.CreateAndStart(ctx, gameDef.TaskRef)
	if err != nil {
		log.Error().Err(err).Str("game", req.GameID).Msg("provisioning failed, resetting session")
		c.session.Clear()
		return
	}
	c.session.SetCurrentInstance(instanceRef)

	log.Info().
		Str("game", req.GameID).
		Str("instance", instanceRef).
		Int("seconds", c.cfg.TeleportCountdownSec).
		Msg("teleport countdown running")

	voters := append([]uuid.UUID(nil), req.Voters...)
	c.timer.Start(c.cfg.TeleportCountdownSec,
		func() bool { return c.session.CurrentInstance() == instanceRef },
		func(remaining int) {
			c.notifier.Notify(voting.Event{Type: voting.EventCountdownTick, GameID: req.GameID, Seconds: remaining})
		},
		func() { c.migrate(voters, instanceRef) },
	)
}

// saveHistory records the session. Best effort: history must never block a
// game from starting.
func (c *Coordinator) saveHistory(req voting.StartRequest, gameDef games.Game) {
	details := make(map[string]int, len(req.Tally))
	for _, e := range req.Tally {
		details[e.GameID] = e.Votes
	}
	rec := history.SessionRecord{
		SessionID:       req.SessionID,
		Timestamp:       c.clock.Now().UTC(),
		WinningGameID:   req.GameID,
		WinningGameName: gameDef.Name,
		TotalVotes:      req.TotalVotes,
		PlayerCount:     req.ParticipantCount,
		VoteDetails:     details,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.store.SaveSession(ctx, rec); err != nil {
			log.Warn().Err(err).Str("session_id", rec.SessionID.String()).Msg("failed to save session history")
		}
	}()
}

// migrate moves the voters onto the instance. Players who never voted stay
// in the lobby; a failed send skips that player, never aborts the batch.
func (c *Coordinator) migrate(voters []uuid.UUID, instanceRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sent := 0
	for _, p := range voters {
		name, ok := c.names.PlayerName(p)
		if !ok {
			continue
		}
		if err := c.provisioner.SendToInstance(ctx, name, instanceRef); err != nil {
			log.Warn().Err(err).Str("player", name).Str("instance", instanceRef).Msg("failed to send player")
			continue
		}
		sent++
	}
	log.Info().Int("sent", sent).Int("voters", len(voters)).Str("instance", instanceRef).Msg("voters migrated")
}

// Join routes a latecomer to the running instance.
func (c *Coordinator) Join(ctx context.Context, p uuid.UUID) error {
	instanceRef := c.session.CurrentInstance()
	if instanceRef == "" {
		return voting.ErrWrongPhase
	}
	name, ok := c.names.PlayerName(p)
	if !ok {
		return fmt.Errorf("unknown player %s", p)
	}
	return c.provisioner.SendToInstance(ctx, name, instanceRef)
}

// Shutdown cancels any pending migration and stops the running instance.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.timer.Cancel()
	instanceRef := c.session.CurrentInstance()
	if instanceRef == "" {
		return
	}
	if err := c.provisioner.RunRemoteCommand(ctx, instanceRef, "stop"); err != nil {
		log.Warn().Err(err).Str("instance", instanceRef).Msg("failed to stop instance")
	}
}
