package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore keeps vote history in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the vote_history table and its indexes if missing.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vote_history (
			session_id UUID PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			winning_game_id VARCHAR(64) NOT NULL,
			winning_game_name VARCHAR(255) NOT NULL,
			total_votes INT NOT NULL,
			player_count INT NOT NULL,
			vote_details JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vote_history_ts ON vote_history (ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_vote_history_winner ON vote_history (winning_game_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init vote_history schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	details, err := json.Marshal(rec.VoteDetails)
	if err != nil {
		return fmt.Errorf("failed to encode vote details: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO vote_history
			(session_id, ts, winning_game_id, winning_game_name, total_votes, player_count, vote_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.Timestamp, rec.WinningGameID, rec.WinningGameName,
		rec.TotalVotes, rec.PlayerCount, details,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.SessionID, err)
	}

	log.Debug().Str("session_id", rec.SessionID.String()).Str("winner", rec.WinningGameID).Msg("session saved to history")
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (SessionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, ts, winning_game_id, winning_game_name, total_votes, player_count, vote_details
		FROM vote_history WHERE session_id = $1`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, ErrNotFound
		}
		return SessionRecord{}, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) PagedSessions(ctx context.Context, page int) ([]SessionRecord, error) {
	if page < 1 {
		page = 1
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, ts, winning_game_id, winning_game_name, total_votes, player_count, vote_details
		FROM vote_history
		ORDER BY ts DESC
		LIMIT $1 OFFSET $2`, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TopWinners(ctx context.Context, limit int) ([]WinnerCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT winning_game_id, MIN(winning_game_name), COUNT(*) AS wins
		FROM vote_history
		GROUP BY winning_game_id
		ORDER BY wins DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate winners: %w", err)
	}
	defer rows.Close()

	var out []WinnerCount
	for rows.Next() {
		var w WinnerCount
		if err := rows.Scan(&w.GameID, &w.GameName, &w.Wins); err != nil {
			return nil, fmt.Errorf("failed to scan winner row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TotalSessions(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vote_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanRecord(row pgx.Row) (SessionRecord, error) {
	var rec SessionRecord
	var details []byte
	if err := row.Scan(&rec.SessionID, &rec.Timestamp, &rec.WinningGameID, &rec.WinningGameName,
		&rec.TotalVotes, &rec.PlayerCount, &details); err != nil {
		return SessionRecord{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.VoteDetails); err != nil {
			return SessionRecord{}, fmt.Errorf("failed to decode vote details: %w", err)
		}
	}
	return rec, nil
}
