package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/TalexCK/GameVoting/internal/dbconfig"
	"github.com/TalexCK/GameVoting/internal/history"
)

// setupHistoryStore connects Postgres-backed history, or falls back to the
// in-memory store when the database is disabled.
func setupHistoryStore(ctx context.Context) (history.Store, error) {
	cfg := dbconfig.NewConfigFromEnv()
	if !cfg.Enabled {
		log.Warn().Msg("database disabled, vote history will not survive restarts")
		return history.NewMemoryStore(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := history.NewPostgresStore(pool)
	if err := store.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return store, nil
}
