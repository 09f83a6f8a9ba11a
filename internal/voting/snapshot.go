package voting

// Phase is the authoritative session phase. Exactly one is active at a time.
type Phase string

const (
	PhaseIdle             Phase = "IDLE"
	PhasePreVoteReady     Phase = "PRE_VOTE_READY"
	PhaseVoting           Phase = "VOTING"
	PhaseReadyCheck       Phase = "READY_CHECK"
	PhaseCountdownToStart Phase = "COUNTDOWN_TO_START"
	PhaseRunningGame      Phase = "RUNNING_GAME"
)

// Snapshot is an immutable view of the session handed to display code. It
// shares no state with the machine; callers may hold it indefinitely.
type Snapshot struct {
	Phase            Phase        `json:"phase"`
	Tally            []TallyEntry `json:"tally"`
	VoterCount       int          `json:"voter_count"`
	TotalSelections  int          `json:"total_selections"`
	ReadyCount       int          `json:"ready_count"`
	ParticipantCount int          `json:"participant_count"`
	RequiredPlayers  int          `json:"required_players,omitempty"`
	RemainingSeconds int          `json:"remaining_seconds,omitempty"`
	WinningGameID    string       `json:"winning_game_id,omitempty"`
	InstanceRef      string       `json:"instance_ref,omitempty"`
}
