package voting

import (
	"sort"

	"github.com/google/uuid"
)

// MaxSelections is the per-player vote cap.
const MaxSelections = 3

// VoteResult describes the outcome of a single vote toggle.
type VoteResult string

const (
	// VoteAdded means the selection was recorded.
	VoteAdded VoteResult = "ADDED"
	// VoteRemoved means an existing selection was toggled off.
	VoteRemoved VoteResult = "REMOVED"
	// VoteLimitReached means the voter already holds MaxSelections picks.
	VoteLimitReached VoteResult = "LIMIT_REACHED"
)

// TallyEntry is one row of the aggregated tally.
type TallyEntry struct {
	GameID string `json:"game_id"`
	Votes  int    `json:"votes"`
}

// BallotBox tracks every player's selections and an incrementally maintained
// tally. Ties are broken by the order in which a game first entered the tally,
// so the first game to reach the leading count wins. The box is phase-agnostic
// and not goroutine safe; the session machine serializes access.
type BallotBox struct {
	selections map[uuid.UUID]map[string]struct{}
	counts     map[string]int
	order      []string // game ids in first-vote order, only while count > 0
}

// NewBallotBox returns an empty ballot box.
func NewBallotBox() *BallotBox {
	b := &BallotBox{}
	b.Clear()
	return b
}

// Vote toggles a selection for the voter. Adding past the cap returns
// VoteLimitReached without mutating anything; removing a voter's last
// selection drops their ballot entirely.
func (b *BallotBox) Vote(voter uuid.UUID, gameID string) VoteResult {
	picks := b.selections[voter]
	if picks != nil {
		if _, has := picks[gameID]; has {
			delete(picks, gameID)
			if len(picks) == 0 {
				delete(b.selections, voter)
			}
			b.decrement(gameID)
			return VoteRemoved
		}
	}

	if len(picks) >= MaxSelections {
		return VoteLimitReached
	}

	if picks == nil {
		picks = make(map[string]struct{}, MaxSelections)
		b.selections[voter] = picks
	}
	picks[gameID] = struct{}{}
	b.increment(gameID)
	return VoteAdded
}

func (b *BallotBox) increment(gameID string) {
	if _, known := b.counts[gameID]; !known {
		b.order = append(b.order, gameID)
	}
	b.counts[gameID]++
}

func (b *BallotBox) decrement(gameID string) {
	b.counts[gameID]--
	if b.counts[gameID] > 0 {
		return
	}
	delete(b.counts, gameID)
	for i, id := range b.order {
		if id == gameID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Tally returns all entries sorted by vote count descending. Equal counts keep
// first-vote order.
func (b *BallotBox) Tally() []TallyEntry {
	entries := make([]TallyEntry, 0, len(b.order))
	for _, id := range b.order {
		entries = append(entries, TallyEntry{GameID: id, Votes: b.counts[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Votes > entries[j].Votes
	})
	return entries
}

// Winner returns the game id with the highest count, or false when the tally
// is empty.
func (b *BallotBox) Winner() (string, bool) {
	tally := b.Tally()
	if len(tally) == 0 {
		return "", false
	}
	return tally[0].GameID, true
}

// Count returns the current vote count for a single game.
func (b *BallotBox) Count(gameID string) int {
	return b.counts[gameID]
}

// Selections returns a copy of the voter's current picks.
func (b *BallotBox) Selections(voter uuid.UUID) []string {
	picks := b.selections[voter]
	out := make([]string, 0, len(picks))
	for id := range picks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasVoted reports whether the voter holds at least one selection.
func (b *BallotBox) HasVoted(voter uuid.UUID) bool {
	_, ok := b.selections[voter]
	return ok
}

// HasVotedFor reports whether the voter currently selects the given game.
func (b *BallotBox) HasVotedFor(voter uuid.UUID, gameID string) bool {
	_, ok := b.selections[voter][gameID]
	return ok
}

// Voters returns the ids of every player with at least one selection.
func (b *BallotBox) Voters() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(b.selections))
	for id := range b.selections {
		out = append(out, id)
	}
	return out
}

// VoterCount returns how many players hold at least one selection.
func (b *BallotBox) VoterCount() int {
	return len(b.selections)
}

// TotalSelections returns the sum of all ballot sizes.
func (b *BallotBox) TotalSelections() int {
	total := 0
	for _, n := range b.counts {
		total += n
	}
	return total
}

// Clear drops all ballots and the tally.
func (b *BallotBox) Clear() {
	b.selections = make(map[uuid.UUID]map[string]struct{})
	b.counts = make(map[string]int)
	b.order = nil
}
