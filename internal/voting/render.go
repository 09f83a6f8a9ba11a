package voting

import "fmt"

// Urgency grades a countdown for display layers that color their output.
type Urgency string

const (
	UrgencyCalm     Urgency = "CALM"
	UrgencyWarning  Urgency = "WARNING"
	UrgencyCritical Urgency = "CRITICAL"
)

// VotingUrgency grades the remaining voting time: over a minute is calm,
// over thirty seconds is a warning, anything less is critical.
func VotingUrgency(remainingSeconds int) Urgency {
	switch {
	case remainingSeconds > 60:
		return UrgencyCalm
	case remainingSeconds > 30:
		return UrgencyWarning
	default:
		return UrgencyCritical
	}
}

// StartUrgency grades the remaining start countdown, which runs on a much
// shorter scale than voting.
func StartUrgency(remainingSeconds int) Urgency {
	switch {
	case remainingSeconds > 10:
		return UrgencyCalm
	case remainingSeconds > 5:
		return UrgencyWarning
	default:
		return UrgencyCritical
	}
}

// FormatDuration renders a countdown as MM:SS, or plain seconds under a
// minute.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= 60 {
		return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// GameNamer resolves a game id to its display name. Unresolvable ids render
// as the raw id.
type GameNamer func(id string) (string, bool)

func resolveName(namer GameNamer, id string) string {
	if namer != nil {
		if name, ok := namer(id); ok {
			return name
		}
	}
	return id
}

// RenderLines builds a human-readable status block for a snapshot, one line
// per fact. Used by the lobby scoreboard and the session status endpoint.
func RenderLines(s Snapshot, namer GameNamer) []string {
	switch s.Phase {
	case PhaseIdle:
		return []string{"No vote in progress"}

	case PhasePreVoteReady:
		return []string{
			"Waiting for players to ready up",
			fmt.Sprintf("Ready: %d/%d", s.ReadyCount, s.ParticipantCount),
			fmt.Sprintf("Players needed: %d", s.RequiredPlayers),
		}

	case PhaseVoting:
		lines := []string{
			"Voting in progress",
			fmt.Sprintf("Time left: %s", FormatDuration(s.RemainingSeconds)),
			fmt.Sprintf("Votes: %d from %d players", s.TotalSelections, s.VoterCount),
		}
		for i, e := range s.Tally {
			if i == 3 {
				break
			}
			lines = append(lines, fmt.Sprintf("%d. %s - %d", i+1, resolveName(namer, e.GameID), e.Votes))
		}
		return lines

	case PhaseReadyCheck:
		return []string{
			fmt.Sprintf("Winner: %s", resolveName(namer, s.WinningGameID)),
			fmt.Sprintf("Ready: %d/%d", s.ReadyCount, s.ParticipantCount),
			"Type /vote ready when you are set",
		}

	case PhaseCountdownToStart:
		return []string{
			fmt.Sprintf("Starting %s", resolveName(namer, s.WinningGameID)),
			fmt.Sprintf("Countdown: %s", FormatDuration(s.RemainingSeconds)),
		}

	case PhaseRunningGame:
		lines := []string{fmt.Sprintf("Now playing: %s", resolveName(namer, s.WinningGameID))}
		if s.InstanceRef != "" {
			lines = append(lines, fmt.Sprintf("Instance: %s", s.InstanceRef))
		}
		lines = append(lines, "Type /vote join to jump in")
		return lines
	}
	return nil
}
