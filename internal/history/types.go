package history

import (
	"time"

	"github.com/google/uuid"
)

// SessionRecord is one completed voting session as persisted.
type SessionRecord struct {
	SessionID       uuid.UUID      `json:"session_id"`
	Timestamp       time.Time      `json:"timestamp"`
	WinningGameID   string         `json:"winning_game_id"`
	WinningGameName string         `json:"winning_game_name"`
	TotalVotes      int            `json:"total_votes"`
	PlayerCount     int            `json:"player_count"`
	VoteDetails     map[string]int `json:"vote_details"`
}

// WinnerCount is an aggregate row for the most-voted games report.
type WinnerCount struct {
	GameID   string `json:"game_id"`
	GameName string `json:"game_name"`
	Wins     int    `json:"wins"`
}

// PageSize is how many sessions a history page holds.
const PageSize = 10
