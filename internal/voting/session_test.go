package voting

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type fakeRoster struct{ online int }

func (r *fakeRoster) OnlineCount() int { return r.online }

type fakeCandidates map[string]bool

func (c fakeCandidates) Count() int         { return len(c) }
func (c fakeCandidates) Has(id string) bool { return c[id] }

type recordStarter struct{ ch chan StartRequest }

func (s *recordStarter) BeginGameStart(req StartRequest) { s.ch <- req }

func testConfig() Config {
	return Config{RequiredPlayers: 6, DefaultDurationMin: 1, StartCountdownSec: 10}
}

func newTestMachine(candidates fakeCandidates) (*SessionMachine, *clockwork.FakeClock, *fakeRoster, *recordStarter) {
	clock := clockwork.NewFakeClock()
	roster := &fakeRoster{online: 3}
	starter := &recordStarter{ch: make(chan StartRequest, 1)}
	m := NewSessionMachine(testConfig(), clock, roster, candidates, nil, starter)
	return m, clock, roster, starter
}

func waitPhase(t *testing.T, m *SessionMachine, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Phase() != want {
		if time.Now().After(deadline) {
			t.Fatalf("phase = %v, want %v", m.Phase(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitStart(t *testing.T, s *recordStarter) StartRequest {
	t.Helper()
	select {
	case req := <-s.ch:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for game start")
		return StartRequest{}
	}
}

func assertNoStart(t *testing.T, s *recordStarter) {
	t.Helper()
	select {
	case req := <-s.ch:
		t.Fatalf("unexpected game start for %q", req.GameID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartVotingRequiresCandidates(t *testing.T) {
	m, _, _, _ := newTestMachine(fakeCandidates{})
	if err := m.StartVoting(1, uuid.Nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want %v", err, ErrNoCandidates)
	}
	if err := m.RequestPreVoteReady(1); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want %v", err, ErrNoCandidates)
	}
}

func TestVoteLifecycle(t *testing.T) {
	m, _, _, _ := newTestMachine(fakeCandidates{"bedwars": true, "skywars": true})
	p1, p2 := uuid.New(), uuid.New()

	if _, err := m.Vote(p1, "bedwars"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("vote while idle: err = %v, want %v", err, ErrWrongPhase)
	}

	starterID := uuid.New()
	if err := m.StartVoting(5, starterID); err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	if m.Phase() != PhaseVoting {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseVoting)
	}
	if m.VoteStarter() != starterID {
		t.Error("vote starter not recorded")
	}
	if err := m.StartVoting(5, starterID); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("double start: err = %v, want %v", err, ErrWrongPhase)
	}

	if _, err := m.Vote(p1, "parkour"); !errors.Is(err, ErrUnknownCandidate) {
		t.Fatalf("unknown game: err = %v, want %v", err, ErrUnknownCandidate)
	}

	mustVote := func(p uuid.UUID, g string, want VoteResult) {
		t.Helper()
		got, err := m.Vote(p, g)
		if err != nil {
			t.Fatalf("Vote(%s): %v", g, err)
		}
		if got != want {
			t.Fatalf("Vote(%s) = %v, want %v", g, got, want)
		}
	}
	mustVote(p1, "bedwars", VoteAdded)
	mustVote(p2, "bedwars", VoteAdded)
	mustVote(p2, "skywars", VoteAdded)
	mustVote(p2, "skywars", VoteRemoved)

	snap := m.Snapshot()
	if snap.VoterCount != 2 || snap.TotalSelections != 2 {
		t.Errorf("snapshot counts = %d voters / %d votes, want 2/2", snap.VoterCount, snap.TotalSelections)
	}

	results, err := m.StopVoting()
	if err != nil {
		t.Fatalf("StopVoting: %v", err)
	}
	if len(results) != 1 || results[0] != (TallyEntry{GameID: "bedwars", Votes: 2}) {
		t.Fatalf("results = %+v", results)
	}
	if m.Phase() != PhaseReadyCheck {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseReadyCheck)
	}
	if snap := m.Snapshot(); snap.WinningGameID != "bedwars" {
		t.Errorf("winner = %q, want bedwars", snap.WinningGameID)
	}
}

func TestStopVotingWithoutVotesResets(t *testing.T) {
	m, _, _, _ := newTestMachine(fakeCandidates{"bedwars": true})
	if err := m.StartVoting(1, uuid.Nil); err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	results, err := m.StopVoting()
	if err != nil {
		t.Fatalf("StopVoting: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want empty", results)
	}
	if m.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want %v", m.Phase(), PhaseIdle)
	}
}

func TestPreVoteGateFloor(t *testing.T) {
	m, _, roster, _ := newTestMachine(fakeCandidates{"bedwars": true})
	if err := m.RequestPreVoteReady(2); err != nil {
		t.Fatalf("RequestPreVoteReady: %v", err)
	}

	roster.online = 4
	players := make([]uuid.UUID, 4)
	for i := range players {
		players[i] = uuid.New()
		if _, err := m.TogglePreVoteReady(players[i]); err != nil {
			t.Fatalf("TogglePreVoteReady: %v", err)
		}
	}
	// All four online players are ready, but the lobby floor is six.
	if m.Phase() != PhasePreVoteReady {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhasePreVoteReady)
	}

	roster.online = 6
	if _, err := m.TogglePreVoteReady(uuid.New()); err != nil {
		t.Fatalf("TogglePreVoteReady: %v", err)
	}
	if m.Phase() != PhasePreVoteReady {
		t.Fatalf("phase = %v, want %v (5 of 6 ready)", m.Phase(), PhasePreVoteReady)
	}
	if _, err := m.TogglePreVoteReady(uuid.New()); err != nil {
		t.Fatalf("TogglePreVoteReady: %v", err)
	}
	if m.Phase() != PhaseVoting {
		t.Fatalf("phase = %v, want %v after the gate fills", m.Phase(), PhaseVoting)
	}
}

// driveToReadyCheck runs a quick vote with three players and stops it.
func driveToReadyCheck(t *testing.T, m *SessionMachine, starterID uuid.UUID) []uuid.UUID {
	t.Helper()
	voters := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	if err := m.StartVoting(5, starterID); err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	for _, p := range voters {
		if _, err := m.Vote(p, "bedwars"); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}
	if _, err := m.StopVoting(); err != nil {
		t.Fatalf("StopVoting: %v", err)
	}
	return voters
}

func TestReadyCheckCountdownLaunchesGame(t *testing.T) {
	m, clock, roster, starter := newTestMachine(fakeCandidates{"bedwars": true})
	roster.online = 3
	voters := driveToReadyCheck(t, m, uuid.Nil)

	for i, p := range voters {
		ready, err := m.ToggleReady(p)
		if err != nil {
			t.Fatalf("ToggleReady: %v", err)
		}
		if !ready {
			t.Fatalf("ToggleReady returned not ready for player %d", i)
		}
	}
	if m.Phase() != PhaseCountdownToStart {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseCountdownToStart)
	}

	clock.BlockUntil(1)
	clock.Advance(11 * time.Second)

	req := waitStart(t, starter)
	if req.GameID != "bedwars" {
		t.Errorf("GameID = %q, want bedwars", req.GameID)
	}
	if len(req.Voters) != len(voters) {
		t.Errorf("Voters = %d, want %d", len(req.Voters), len(voters))
	}
	if req.TotalVotes != 3 || req.VoterCount != 3 {
		t.Errorf("counts = %d votes / %d voters, want 3/3", req.TotalVotes, req.VoterCount)
	}
	if req.Initiator != uuid.Nil {
		t.Error("countdown start should have no initiator")
	}
	waitPhase(t, m, PhaseRunningGame)
}

func TestUnreadyDuringCountdownDropsBack(t *testing.T) {
	m, clock, roster, starter := newTestMachine(fakeCandidates{"bedwars": true})
	roster.online = 3
	voters := driveToReadyCheck(t, m, uuid.Nil)

	for _, p := range voters {
		if _, err := m.ToggleReady(p); err != nil {
			t.Fatalf("ToggleReady: %v", err)
		}
	}
	if m.Phase() != PhaseCountdownToStart {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseCountdownToStart)
	}

	ready, err := m.ToggleReady(voters[0])
	if err != nil {
		t.Fatalf("ToggleReady: %v", err)
	}
	if ready {
		t.Error("toggle should have unreadied the player")
	}
	if m.Phase() != PhaseReadyCheck {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseReadyCheck)
	}
	if snap := m.Snapshot(); snap.ReadyCount != 2 {
		t.Errorf("ReadyCount = %d, want 2 (other marks intact)", snap.ReadyCount)
	}

	clock.Advance(time.Minute)
	assertNoStart(t, starter)

	// Readying back up restarts a full countdown.
	if _, err := m.ToggleReady(voters[0]); err != nil {
		t.Fatalf("ToggleReady: %v", err)
	}
	if m.Phase() != PhaseCountdownToStart {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseCountdownToStart)
	}
	clock.BlockUntil(1)
	clock.Advance(11 * time.Second)
	waitStart(t, starter)
}

func TestForceStartPermissions(t *testing.T) {
	m, _, roster, starter := newTestMachine(fakeCandidates{"bedwars": true})
	roster.online = 3
	starterID := uuid.New()
	driveToReadyCheck(t, m, starterID)

	if err := m.ForceStart(uuid.New()); !errors.Is(err, ErrNotStarter) {
		t.Fatalf("foreign force start: err = %v, want %v", err, ErrNotStarter)
	}
	if err := m.ForceStart(starterID); err != nil {
		t.Fatalf("ForceStart: %v", err)
	}
	req := waitStart(t, starter)
	if req.Initiator != starterID {
		t.Error("initiator should be the vote starter")
	}
	if m.Phase() != PhaseRunningGame {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseRunningGame)
	}
	if err := m.ForceStart(starterID); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("double force start: err = %v, want %v", err, ErrWrongPhase)
	}
}

func TestForceStartFromConsole(t *testing.T) {
	m, _, roster, starter := newTestMachine(fakeCandidates{"bedwars": true})
	roster.online = 3
	driveToReadyCheck(t, m, uuid.New())

	// uuid.Nil is the console; it may always force.
	if err := m.ForceStart(uuid.Nil); err != nil {
		t.Fatalf("console ForceStart: %v", err)
	}
	waitStart(t, starter)
}

func TestClearCancelsPendingCountdown(t *testing.T) {
	m, clock, roster, starter := newTestMachine(fakeCandidates{"bedwars": true})
	roster.online = 3
	voters := driveToReadyCheck(t, m, uuid.Nil)
	for _, p := range voters {
		if _, err := m.ToggleReady(p); err != nil {
			t.Fatalf("ToggleReady: %v", err)
		}
	}

	m.Clear()
	if m.Phase() != PhaseIdle {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseIdle)
	}

	clock.Advance(time.Minute)
	assertNoStart(t, starter)

	snap := m.Snapshot()
	if snap.VoterCount != 0 || snap.ReadyCount != 0 || snap.WinningGameID != "" {
		t.Errorf("cleared snapshot = %+v", snap)
	}
}

func TestVotingExpiresViaTimer(t *testing.T) {
	m, clock, _, _ := newTestMachine(fakeCandidates{"bedwars": true})
	if err := m.StartVoting(1, uuid.Nil); err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	if _, err := m.Vote(uuid.New(), "bedwars"); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	clock.BlockUntil(1)
	clock.Advance(61 * time.Second)
	waitPhase(t, m, PhaseReadyCheck)
}

func TestHandleQuitCompletesReadyGate(t *testing.T) {
	m, _, roster, _ := newTestMachine(fakeCandidates{"bedwars": true})
	roster.online = 3
	voters := driveToReadyCheck(t, m, uuid.Nil)

	if _, err := m.ToggleReady(voters[0]); err != nil {
		t.Fatalf("ToggleReady: %v", err)
	}
	if _, err := m.ToggleReady(voters[1]); err != nil {
		t.Fatalf("ToggleReady: %v", err)
	}
	if m.Phase() != PhaseReadyCheck {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseReadyCheck)
	}

	// The only unready player disconnects: 2 of 2 remaining are ready.
	roster.online = 2
	m.HandleQuit(voters[2])
	if m.Phase() != PhaseCountdownToStart {
		t.Fatalf("phase = %v, want %v", m.Phase(), PhaseCountdownToStart)
	}
}

func TestSnapshotRemainingSeconds(t *testing.T) {
	m, clock, _, _ := newTestMachine(fakeCandidates{"bedwars": true})
	if err := m.StartVoting(2, uuid.Nil); err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	if got := m.Snapshot().RemainingSeconds; got != 120 {
		t.Fatalf("RemainingSeconds = %d, want 120", got)
	}
	clock.Advance(30 * time.Second)
	if got := m.Snapshot().RemainingSeconds; got != 90 {
		t.Fatalf("RemainingSeconds after 30s = %d, want 90", got)
	}
}
