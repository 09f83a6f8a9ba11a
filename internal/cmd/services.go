package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/TalexCK/GameVoting/internal/events"
	"github.com/TalexCK/GameVoting/internal/game"
	"github.com/TalexCK/GameVoting/internal/games"
	"github.com/TalexCK/GameVoting/internal/gateway"
	"github.com/TalexCK/GameVoting/internal/history"
	"github.com/TalexCK/GameVoting/internal/party"
	"github.com/TalexCK/GameVoting/internal/provision"
	"github.com/TalexCK/GameVoting/internal/voting"
)

// Services holds every wired component of the lobby.
type Services struct {
	Registry    *games.Registry
	Machine     *voting.SessionMachine
	Coordinator *game.Coordinator
	Parties     *party.Manager
	Store       history.Store
	Connections *gateway.ConnectionManager
	Handler     *gateway.Handler
	Provisioner *provision.NATSProvisioner
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	registry, err := games.LoadRegistry(cfg.GamesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}
	log.Info().Int("games", registry.Count()).Msg("game registry loaded")

	store, err := setupHistoryStore(ctx)
	if err != nil {
		return nil, err
	}

	provisioner, err := provision.Connect(getEnv("NATS_URL", "nats://localhost:4222"))
	if err != nil {
		store.Close()
		return nil, err
	}

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), nil)
	publisher := events.NewNATSPublisher(provisioner.Conn())
	notifier := events.Fanout{connections, publisher}

	machine := voting.NewSessionMachine(
		voting.Config{
			RequiredPlayers:    cfg.Lobby.RequiredPlayers,
			DefaultDurationMin: cfg.Lobby.DefaultDurationMinutes,
			StartCountdownSec:  cfg.Lobby.StartCountdownSeconds,
		},
		clock, connections, registry, notifier, nil,
	)

	coordinator := game.NewCoordinator(
		game.Config{
			TeleportCountdownSec: cfg.Lobby.TeleportCountdownSecs,
			ProvisionTimeout:     game.DefaultConfig().ProvisionTimeout,
		},
		clock, machine, registry, provisioner, store, connections, notifier,
	)
	machine.SetGameStarter(coordinator)

	parties := party.NewManager(clock)
	connections.SetOnQuit(func(p uuid.UUID) {
		machine.HandleQuit(p)
		parties.HandleQuit(p)
	})

	go connections.Start(ctx)

	handler := gateway.NewHandler(machine, coordinator, registry, parties, store, connections, clock)
	return &Services{
		Registry:    registry,
		Machine:     machine,
		Coordinator: coordinator,
		Parties:     parties,
		Store:       store,
		Connections: connections,
		Handler:     handler,
		Provisioner: provisioner,
	}, nil
}

// Close releases external connections.
func (s *Services) Close() {
	s.Provisioner.Close()
	s.Store.Close()
}
