package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id has no stored record.
var ErrNotFound = errors.New("history: session not found")

// Store persists completed voting sessions.
type Store interface {
	// SaveSession writes one finished session.
	SaveSession(ctx context.Context, rec SessionRecord) error
	// GetSession fetches a single session, ErrNotFound when absent.
	GetSession(ctx context.Context, id uuid.UUID) (SessionRecord, error)
	// PagedSessions returns one page of sessions, newest first. Pages are
	// 1-based and PageSize long.
	PagedSessions(ctx context.Context, page int) ([]SessionRecord, error)
	// TopWinners aggregates win counts per game, most wins first.
	TopWinners(ctx context.Context, limit int) ([]WinnerCount, error)
	// TotalSessions returns how many sessions are stored.
	TotalSessions(ctx context.Context) (int, error)
	// Close releases the store's resources.
	Close()
}
