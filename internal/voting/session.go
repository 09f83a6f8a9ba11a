package voting

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Roster reports who is currently in the lobby. The machine re-evaluates it on
// every readiness check instead of snapshotting membership, so late joiners
// raise the bar and leavers lower it.
type Roster interface {
	OnlineCount() int
}

// CandidateSource is the configured game list the session votes over.
type CandidateSource interface {
	Count() int
	Has(id string) bool
}

// StartRequest carries everything the game-start coordinator needs once the
// session commits to launching the winner.
type StartRequest struct {
	SessionID        uuid.UUID
	GameID           string
	Tally            []TallyEntry
	TotalVotes       int
	VoterCount       int
	ParticipantCount int
	// Voters are the players who cast at least one vote. Only they are
	// migrated to the new instance.
	Voters []uuid.UUID
	// Initiator is the player who forced the start, or uuid.Nil when the
	// countdown (or console) triggered it.
	Initiator uuid.UUID
}

// GameStarter hands the resolved session to provisioning. Implementations
// must not block; the machine invokes it from its own goroutine.
type GameStarter interface {
	BeginGameStart(req StartRequest)
}

// Config holds the tunables of a voting session.
type Config struct {
	// RequiredPlayers is the lobby floor for the pre-vote ready gate.
	RequiredPlayers int
	// DefaultDurationMin is the voting duration used when none is given.
	DefaultDurationMin int
	// StartCountdownSec is the countdown run once everyone is ready.
	StartCountdownSec int
}

// DefaultConfig mirrors the production lobby defaults.
func DefaultConfig() Config {
	return Config{
		RequiredPlayers:    6,
		DefaultDurationMin: 3,
		StartCountdownSec:  10,
	}
}

// SessionMachine drives one lobby's voting lifecycle: pre-vote ready-up,
// voting, post-vote ready check, start countdown, running game. It owns the
// ballot box, both ready gates and both timers exclusively.
//
// All state is guarded by a single mutex. Timer callbacks re-enter through
// exported-style methods that revalidate a generation counter under the lock,
// so a tick from a superseded phase is a no-op. The machine never touches a
// timer while holding its own lock: it detaches state first, unlocks, then
// cancels or starts, which keeps the lock order one-way (timer -> machine).
type SessionMachine struct {
	cfg        Config
	clock      clockwork.Clock
	roster     Roster
	candidates CandidateSource
	notifier   Notifier
	starter    GameStarter

	votingTimer *CountdownTimer
	startTimer  *CountdownTimer

	mu          sync.Mutex
	phase       Phase
	gen         uint64
	sessionID   uuid.UUID
	box         *BallotBox
	preGate     *ReadyGate
	readyGate   *ReadyGate
	voteStarter uuid.UUID
	pendingMin  int
	finalTally  []TallyEntry
	winnerID    string
	instanceRef string
}

// NewSessionMachine constructs an idle machine. notifier and starter may be
// nil when the caller does not care about events or game starts (tests).
func NewSessionMachine(cfg Config, clock clockwork.Clock, roster Roster, candidates CandidateSource, notifier Notifier, starter GameStarter) *SessionMachine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SessionMachine{
		cfg:         cfg,
		clock:       clock,
		roster:      roster,
		candidates:  candidates,
		notifier:    notifier,
		starter:     starter,
		votingTimer: NewCountdownTimer(clock),
		startTimer:  NewCountdownTimer(clock),
		phase:       PhaseIdle,
		box:         NewBallotBox(),
		preGate:     NewThresholdGate(cfg.RequiredPlayers),
		readyGate:   NewReadyGate(),
		pendingMin:  cfg.DefaultDurationMin,
	}
}

// SetGameStarter wires the coordinator in after construction, which breaks
// the machine/coordinator cycle at startup.
func (m *SessionMachine) SetGameStarter(s GameStarter) {
	m.mu.Lock()
	m.starter = s
	m.mu.Unlock()
}

// Phase returns the current phase.
func (m *SessionMachine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Snapshot returns an immutable view for display layers.
func (m *SessionMachine) Snapshot() Snapshot {
	m.mu.Lock()
	snap := m.snapshotLocked()
	phase := m.phase
	m.mu.Unlock()

	switch phase {
	case PhaseVoting:
		snap.RemainingSeconds = m.votingTimer.Remaining()
	case PhaseCountdownToStart:
		snap.RemainingSeconds = m.startTimer.Remaining()
	}
	return snap
}

func (m *SessionMachine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:            m.phase,
		VoterCount:       m.box.VoterCount(),
		TotalSelections:  m.box.TotalSelections(),
		ParticipantCount: m.roster.OnlineCount(),
		WinningGameID:    m.winnerID,
		InstanceRef:      m.instanceRef,
	}
	switch m.phase {
	case PhasePreVoteReady:
		snap.ReadyCount = m.preGate.ReadyCount()
		snap.RequiredPlayers = m.cfg.RequiredPlayers
	case PhaseVoting:
		snap.Tally = m.box.Tally()
	case PhaseReadyCheck, PhaseCountdownToStart:
		snap.Tally = append([]TallyEntry(nil), m.finalTally...)
		snap.ReadyCount = m.readyGate.ReadyCount()
	case PhaseRunningGame:
		snap.Tally = append([]TallyEntry(nil), m.finalTally...)
	}
	return snap
}

// RequestPreVoteReady opens the pre-vote ready gate: players must ready up,
// and at least RequiredPlayers must be online, before voting begins with the
// given duration in minutes (zero means the configured default).
func (m *SessionMachine) RequestPreVoteReady(durationMin int) error {
	if durationMin <= 0 {
		durationMin = m.cfg.DefaultDurationMin
	}

	m.mu.Lock()
	if m.phase != PhaseIdle {
		m.mu.Unlock()
		return ErrWrongPhase
	}
	if m.candidates.Count() == 0 {
		m.mu.Unlock()
		return ErrNoCandidates
	}
	m.phase = PhasePreVoteReady
	m.pendingMin = durationMin
	m.preGate.Reset()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	log.Info().Int("duration_min", durationMin).Msg("pre-vote ready phase opened")
	m.notifier.Notify(Event{Type: EventPhaseChanged, Snapshot: snap})
	return nil
}

// TogglePreVoteReady flips a player's pre-vote ready mark. The call that
// completes the gate transitions the session into voting.
func (m *SessionMachine) TogglePreVoteReady(p uuid.UUID) (bool, error) {
	m.mu.Lock()
	if m.phase != PhasePreVoteReady {
		m.mu.Unlock()
		return false, ErrWrongPhase
	}

	nowReady := !m.preGate.IsReady(p)
	if nowReady {
		m.preGate.MarkReady(p)
	} else {
		m.preGate.UnmarkReady(p)
	}

	if m.preGate.AllReady(m.roster.OnlineCount()) {
		seconds, gen := m.startVotingLocked(uuid.Nil)
		snap := m.snapshotLocked()
		m.mu.Unlock()

		m.armVotingTimer(seconds, gen)
		m.notifier.Notify(Event{Type: EventPhaseChanged, Snapshot: snap})
		return nowReady, nil
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notifier.Notify(Event{Type: EventReadyChanged, Player: p, Snapshot: snap})
	return nowReady, nil
}

// StartVoting begins a voting round immediately (admin path). starter is
// recorded as the only player allowed to force the eventual game start;
// uuid.Nil stands for console.
func (m *SessionMachine) StartVoting(durationMin int, starter uuid.UUID) error {
	if durationMin <= 0 {
		durationMin = m.cfg.DefaultDurationMin
	}

	m.mu.Lock()
	if m.phase != PhaseIdle && m.phase != PhasePreVoteReady {
		m.mu.Unlock()
		return ErrWrongPhase
	}
	if m.candidates.Count() == 0 {
		m.mu.Unlock()
		return ErrNoCandidates
	}
	m.pendingMin = durationMin
	seconds, gen := m.startVotingLocked(starter)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.armVotingTimer(seconds, gen)
	m.notifier.Notify(Event{Type: EventPhaseChanged, Snapshot: snap})
	return nil
}

// startVotingLocked transitions into VOTING and returns the timer duration in
// seconds plus the new generation. Caller holds the lock and must arm the
// voting timer after unlocking.
func (m *SessionMachine) startVotingLocked(starter uuid.UUID) (int, uint64) {
	m.phase = PhaseVoting
	m.gen++
	m.sessionID = uuid.New()
	m.box.Clear()
	m.preGate.Reset()
	m.readyGate.Reset()
	m.voteStarter = starter
	m.finalTally = nil
	m.winnerID = ""

	log.Info().
		Str("session_id", m.sessionID.String()).
		Int("duration_min", m.pendingMin).
		Int("candidates", m.candidates.Count()).
		Msg("voting started")
	return m.pendingMin * 60, m.gen
}

func (m *SessionMachine) armVotingTimer(seconds int, gen uint64) {
	m.votingTimer.Start(seconds,
		func() bool { return m.phaseIs(PhaseVoting, gen) },
		func(remaining int) {
			m.notifier.Notify(Event{Type: EventCountdownTick, Seconds: remaining, Snapshot: m.tickSnapshot(remaining)})
		},
		func() { m.votingExpired(gen) },
	)
}

// tickSnapshot builds a snapshot from inside a timer callback. The timer
// already knows the remaining seconds, and asking it back would deadlock.
func (m *SessionMachine) tickSnapshot(remaining int) Snapshot {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	snap.RemainingSeconds = remaining
	return snap
}

// Vote toggles a player's selection for a game. Valid only while voting.
func (m *SessionMachine) Vote(p uuid.UUID, gameID string) (VoteResult, error) {
	m.mu.Lock()
	if m.phase != PhaseVoting {
		m.mu.Unlock()
		return "", ErrWrongPhase
	}
	if !m.candidates.Has(gameID) {
		m.mu.Unlock()
		return "", ErrUnknownCandidate
	}
	result := m.box.Vote(p, gameID)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if result != VoteLimitReached {
		m.notifier.Notify(Event{Type: EventVoteRecorded, Player: p, GameID: gameID, Snapshot: snap})
	}
	return result, nil
}

// votingExpired is the voting timer's completion callback. The timer has
// already stopped itself, so no cancel here.
func (m *SessionMachine) votingExpired(gen uint64) {
	if _, err := m.stopVoting(gen, false); err != nil {
		log.Debug().Err(err).Msg("voting timer fired after phase moved on")
	}
}

// StopVoting ends the voting phase early (admin path) and resolves results.
func (m *SessionMachine) StopVoting() ([]TallyEntry, error) {
	return m.stopVoting(m.currentGen(), true)
}

func (m *SessionMachine) stopVoting(gen uint64, cancelTimer bool) ([]TallyEntry, error) {
	m.mu.Lock()
	if m.phase != PhaseVoting || m.gen != gen {
		m.mu.Unlock()
		return nil, ErrWrongPhase
	}

	m.finalTally = m.box.Tally()
	m.gen++

	winner, hasWinner := m.box.Winner()
	if !hasWinner {
		// Nobody voted: nothing to ready up for.
		m.phase = PhaseIdle
		m.winnerID = ""
		m.box.Clear()
		snap := m.snapshotLocked()
		results := m.finalTally
		m.mu.Unlock()

		if cancelTimer {
			m.votingTimer.Cancel()
		}
		log.Info().Msg("voting ended with no votes, session reset")
		m.notifier.Notify(Event{Type: EventVotingEnded, Snapshot: snap})
		return results, nil
	}

	m.phase = PhaseReadyCheck
	m.winnerID = winner
	m.readyGate.Reset()
	snap := m.snapshotLocked()
	results := append([]TallyEntry(nil), m.finalTally...)
	m.mu.Unlock()

	if cancelTimer {
		m.votingTimer.Cancel()
	}
	log.Info().
		Str("winner", winner).
		Int("total_votes", snap.TotalSelections).
		Int("voters", snap.VoterCount).
		Msg("voting ended, ready check opened")
	m.notifier.Notify(Event{Type: EventVotingEnded, GameID: winner, Snapshot: snap})
	return results, nil
}

// ToggleReady flips a player's post-vote ready mark. The call that completes
// the gate starts the countdown; unreadying during the countdown cancels it
// and drops back to the ready check without touching anyone else's mark.
func (m *SessionMachine) ToggleReady(p uuid.UUID) (bool, error) {
	m.mu.Lock()
	if m.phase != PhaseReadyCheck && m.phase != PhaseCountdownToStart {
		m.mu.Unlock()
		return false, ErrWrongPhase
	}

	if m.readyGate.IsReady(p) {
		m.readyGate.UnmarkReady(p)
		cancelCountdown := m.phase == PhaseCountdownToStart
		if cancelCountdown {
			m.phase = PhaseReadyCheck
			m.gen++
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()

		if cancelCountdown {
			m.startTimer.Cancel()
			log.Info().Str("player", p.String()).Msg("start countdown cancelled by unready")
			m.notifier.Notify(Event{Type: EventPhaseChanged, Player: p, Snapshot: snap})
		} else {
			m.notifier.Notify(Event{Type: EventReadyChanged, Player: p, Snapshot: snap})
		}
		return false, nil
	}

	m.readyGate.MarkReady(p)
	if m.phase == PhaseReadyCheck && m.readyGate.AllReady(m.roster.OnlineCount()) {
		m.phase = PhaseCountdownToStart
		m.gen++
		gen := m.gen
		snap := m.snapshotLocked()
		m.mu.Unlock()

		m.armStartCountdown(gen)
		log.Info().Int("seconds", m.cfg.StartCountdownSec).Msg("all players ready, start countdown running")
		m.notifier.Notify(Event{Type: EventPhaseChanged, Player: p, Snapshot: snap})
		return true, nil
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notifier.Notify(Event{Type: EventReadyChanged, Player: p, Snapshot: snap})
	return true, nil
}

func (m *SessionMachine) armStartCountdown(gen uint64) {
	m.startTimer.Start(m.cfg.StartCountdownSec,
		func() bool { return m.phaseIs(PhaseCountdownToStart, gen) },
		func(remaining int) {
			m.notifier.Notify(Event{Type: EventCountdownTick, Seconds: remaining, Snapshot: m.tickSnapshot(remaining)})
		},
		func() { m.countdownComplete(gen) },
	)
}

// ForceStart skips the ready check. Only the recorded vote starter or console
// (uuid.Nil) may do this.
func (m *SessionMachine) ForceStart(requester uuid.UUID) error {
	m.mu.Lock()
	if m.phase != PhaseReadyCheck && m.phase != PhaseCountdownToStart {
		m.mu.Unlock()
		return ErrWrongPhase
	}
	if requester != uuid.Nil && requester != m.voteStarter {
		m.mu.Unlock()
		return ErrNotStarter
	}
	req, err := m.commitGameStartLocked(requester)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.startTimer.Cancel()
	if err != nil {
		return err
	}
	m.launch(req, snap)
	return nil
}

// countdownComplete is the start countdown's completion callback.
func (m *SessionMachine) countdownComplete(gen uint64) {
	m.mu.Lock()
	if m.phase != PhaseCountdownToStart || m.gen != gen {
		m.mu.Unlock()
		return
	}
	req, err := m.commitGameStartLocked(uuid.Nil)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("countdown completed but no winner resolved")
		return
	}
	m.launch(req, snap)
}

// commitGameStartLocked moves into RUNNING_GAME and builds the start request.
func (m *SessionMachine) commitGameStartLocked(initiator uuid.UUID) (StartRequest, error) {
	if m.winnerID == "" {
		return StartRequest{}, ErrNoWinner
	}

	m.phase = PhaseRunningGame
	m.gen++

	details := append([]TallyEntry(nil), m.finalTally...)
	req := StartRequest{
		SessionID:        m.sessionID,
		GameID:           m.winnerID,
		Tally:            details,
		TotalVotes:       m.box.TotalSelections(),
		VoterCount:       m.box.VoterCount(),
		ParticipantCount: m.roster.OnlineCount(),
		Voters:           m.box.Voters(),
		Initiator:        initiator,
	}
	return req, nil
}

func (m *SessionMachine) launch(req StartRequest, snap Snapshot) {
	log.Info().
		Str("session_id", req.SessionID.String()).
		Str("game", req.GameID).
		Int("voters", len(req.Voters)).
		Msg("game start committed")
	m.notifier.Notify(Event{Type: EventGameStarting, GameID: req.GameID, Snapshot: snap})

	m.mu.Lock()
	starter := m.starter
	m.mu.Unlock()
	if starter != nil {
		go starter.BeginGameStart(req)
	}
}

// SetCurrentInstance records the backend instance serving the running game so
// latecomers can be routed to it.
func (m *SessionMachine) SetCurrentInstance(ref string) {
	m.mu.Lock()
	m.instanceRef = ref
	m.mu.Unlock()
}

// CurrentInstance returns the active backend instance ref, empty when no game
// is running.
func (m *SessionMachine) CurrentInstance() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instanceRef
}

// VoteStarter returns the player recorded as having started the vote.
func (m *SessionMachine) VoteStarter() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voteStarter
}

// HasVoted reports whether the player currently holds a ballot.
func (m *SessionMachine) HasVoted(p uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.box.HasVoted(p)
}

// Selections returns the player's current picks.
func (m *SessionMachine) Selections(p uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.box.Selections(p)
}

// HandleQuit drops a leaving player's ready marks. Their ballot is kept in
// case they return mid-vote. Removing a mark shrinks the denominator, so the
// departure itself can complete a gate; both gates are re-evaluated here.
func (m *SessionMachine) HandleQuit(p uuid.UUID) {
	m.mu.Lock()
	m.preGate.UnmarkReady(p)
	m.readyGate.UnmarkReady(p)

	switch m.phase {
	case PhasePreVoteReady:
		if m.preGate.AllReady(m.roster.OnlineCount()) {
			seconds, gen := m.startVotingLocked(uuid.Nil)
			snap := m.snapshotLocked()
			m.mu.Unlock()

			m.armVotingTimer(seconds, gen)
			m.notifier.Notify(Event{Type: EventPhaseChanged, Snapshot: snap})
			return
		}
	case PhaseReadyCheck:
		if m.readyGate.AllReady(m.roster.OnlineCount()) {
			m.phase = PhaseCountdownToStart
			m.gen++
			gen := m.gen
			snap := m.snapshotLocked()
			m.mu.Unlock()

			m.armStartCountdown(gen)
			m.notifier.Notify(Event{Type: EventPhaseChanged, Snapshot: snap})
			return
		}
	}
	m.mu.Unlock()
}

// Clear aborts whatever is running and returns the machine to idle. Every
// owned timer is cancelled; their callbacks are invalidated first, so a tick
// racing this call observes a stale generation and does nothing.
func (m *SessionMachine) Clear() {
	m.mu.Lock()
	m.phase = PhaseIdle
	m.gen++
	m.box.Clear()
	m.preGate.Reset()
	m.readyGate.Reset()
	m.voteStarter = uuid.Nil
	m.finalTally = nil
	m.winnerID = ""
	m.instanceRef = ""
	m.pendingMin = m.cfg.DefaultDurationMin
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.votingTimer.Cancel()
	m.startTimer.Cancel()
	log.Info().Msg("session cleared")
	m.notifier.Notify(Event{Type: EventPhaseChanged, Snapshot: snap})
}

func (m *SessionMachine) currentGen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *SessionMachine) phaseIs(p Phase, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == p && m.gen == gen
}
