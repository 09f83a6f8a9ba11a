package voting

import (
	"testing"

	"github.com/google/uuid"
)

func TestBallotBoxToggle(t *testing.T) {
	b := NewBallotBox()
	p := uuid.New()

	if got := b.Vote(p, "bedwars"); got != VoteAdded {
		t.Fatalf("first vote = %v, want %v", got, VoteAdded)
	}
	if !b.HasVotedFor(p, "bedwars") {
		t.Error("expected selection recorded")
	}
	if got := b.Vote(p, "bedwars"); got != VoteRemoved {
		t.Fatalf("second vote = %v, want %v", got, VoteRemoved)
	}
	if b.HasVoted(p) {
		t.Error("removing last selection should drop the ballot")
	}
	if b.Count("bedwars") != 0 {
		t.Errorf("count = %d, want 0", b.Count("bedwars"))
	}
}

func TestBallotBoxSelectionCap(t *testing.T) {
	b := NewBallotBox()
	p := uuid.New()

	for _, g := range []string{"a", "b", "c"} {
		if got := b.Vote(p, g); got != VoteAdded {
			t.Fatalf("vote %q = %v, want %v", g, got, VoteAdded)
		}
	}
	if got := b.Vote(p, "d"); got != VoteLimitReached {
		t.Fatalf("vote past cap = %v, want %v", got, VoteLimitReached)
	}
	if b.Count("d") != 0 {
		t.Error("rejected vote must not change the tally")
	}
	if got := len(b.Selections(p)); got != MaxSelections {
		t.Errorf("selections = %d, want %d", got, MaxSelections)
	}

	// Toggling off an existing pick frees a slot.
	if got := b.Vote(p, "b"); got != VoteRemoved {
		t.Fatalf("toggle off = %v, want %v", got, VoteRemoved)
	}
	if got := b.Vote(p, "d"); got != VoteAdded {
		t.Fatalf("vote after freeing slot = %v, want %v", got, VoteAdded)
	}
}

func TestBallotBoxTallyOrdering(t *testing.T) {
	b := NewBallotBox()
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()

	b.Vote(p1, "skywars")
	b.Vote(p2, "bedwars")
	b.Vote(p3, "bedwars")
	b.Vote(p1, "tntrun")

	tally := b.Tally()
	want := []TallyEntry{
		{GameID: "bedwars", Votes: 2},
		{GameID: "skywars", Votes: 1},
		{GameID: "tntrun", Votes: 1},
	}
	if len(tally) != len(want) {
		t.Fatalf("tally has %d entries, want %d", len(tally), len(want))
	}
	for i := range want {
		if tally[i] != want[i] {
			t.Errorf("tally[%d] = %+v, want %+v", i, tally[i], want[i])
		}
	}
}

func TestBallotBoxTieBreakFirstVoted(t *testing.T) {
	b := NewBallotBox()
	p1, p2 := uuid.New(), uuid.New()

	b.Vote(p1, "skywars")
	b.Vote(p2, "bedwars")

	winner, ok := b.Winner()
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner != "skywars" {
		t.Errorf("winner = %q, want the first game voted for", winner)
	}

	// Removing and re-adding moves the game to the back of the tie order.
	b.Vote(p1, "skywars")
	b.Vote(p1, "skywars")
	if winner, _ := b.Winner(); winner != "bedwars" {
		t.Errorf("winner after re-vote = %q, want %q", winner, "bedwars")
	}
}

func TestBallotBoxWinnerEmpty(t *testing.T) {
	b := NewBallotBox()
	if _, ok := b.Winner(); ok {
		t.Error("empty box must have no winner")
	}

	p := uuid.New()
	b.Vote(p, "bedwars")
	b.Vote(p, "bedwars")
	if _, ok := b.Winner(); ok {
		t.Error("box emptied by toggles must have no winner")
	}
}

func TestBallotBoxCounters(t *testing.T) {
	b := NewBallotBox()
	p1, p2 := uuid.New(), uuid.New()

	b.Vote(p1, "a")
	b.Vote(p1, "b")
	b.Vote(p2, "a")

	if got := b.VoterCount(); got != 2 {
		t.Errorf("VoterCount = %d, want 2", got)
	}
	if got := b.TotalSelections(); got != 3 {
		t.Errorf("TotalSelections = %d, want 3", got)
	}
	if got := len(b.Voters()); got != 2 {
		t.Errorf("Voters = %d ids, want 2", got)
	}

	b.Clear()
	if b.VoterCount() != 0 || b.TotalSelections() != 0 || len(b.Tally()) != 0 {
		t.Error("Clear must empty all state")
	}
}
