package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TalexCK/GameVoting/internal/dbconfig"
	"github.com/TalexCK/GameVoting/internal/history"
)

// Seeds vote_history from a JSON snapshot, for local development:
//
//	go run ./internal/tools/seed_history history.json
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: seed_history <records.json>")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var records []history.SessionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := history.NewPostgresStore(pool)
	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "init schema: %v\n", err)
		os.Exit(1)
	}

	seeded := 0
	for _, rec := range records {
		if err := store.SaveSession(ctx, rec); err != nil {
			fmt.Fprintf(os.Stderr, "save %s: %v\n", rec.SessionID, err)
			continue
		}
		seeded++
	}
	fmt.Printf("seeded %d/%d sessions\n", seeded, len(records))
}
