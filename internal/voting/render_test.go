package voting

import "testing"

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{-5, "0s"},
		{0, "0s"},
		{45, "45s"},
		{60, "01:00"},
		{90, "01:30"},
		{185, "03:05"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestUrgencyThresholds(t *testing.T) {
	if got := VotingUrgency(90); got != UrgencyCalm {
		t.Errorf("VotingUrgency(90) = %v", got)
	}
	if got := VotingUrgency(45); got != UrgencyWarning {
		t.Errorf("VotingUrgency(45) = %v", got)
	}
	if got := VotingUrgency(30); got != UrgencyCritical {
		t.Errorf("VotingUrgency(30) = %v", got)
	}
	if got := StartUrgency(11); got != UrgencyCalm {
		t.Errorf("StartUrgency(11) = %v", got)
	}
	if got := StartUrgency(6); got != UrgencyWarning {
		t.Errorf("StartUrgency(6) = %v", got)
	}
	if got := StartUrgency(5); got != UrgencyCritical {
		t.Errorf("StartUrgency(5) = %v", got)
	}
}

func TestRenderLines(t *testing.T) {
	namer := func(id string) (string, bool) {
		if id == "bedwars" {
			return "Bed Wars", true
		}
		return "", false
	}

	idle := RenderLines(Snapshot{Phase: PhaseIdle}, namer)
	if len(idle) != 1 || idle[0] != "No vote in progress" {
		t.Errorf("idle lines = %v", idle)
	}

	votingSnap := Snapshot{
		Phase:            PhaseVoting,
		RemainingSeconds: 90,
		TotalSelections:  4,
		VoterCount:       3,
		Tally: []TallyEntry{
			{GameID: "bedwars", Votes: 3},
			{GameID: "mystery", Votes: 1},
		},
	}
	lines := RenderLines(votingSnap, namer)
	if lines[1] != "Time left: 01:30" {
		t.Errorf("time line = %q", lines[1])
	}
	if lines[3] != "1. Bed Wars - 3" {
		t.Errorf("tally line = %q", lines[3])
	}
	// Unresolvable ids fall back to the raw id.
	if lines[4] != "2. mystery - 1" {
		t.Errorf("fallback line = %q", lines[4])
	}

	running := RenderLines(Snapshot{Phase: PhaseRunningGame, WinningGameID: "bedwars", InstanceRef: "bw-1"}, namer)
	if running[0] != "Now playing: Bed Wars" || running[1] != "Instance: bw-1" {
		t.Errorf("running lines = %v", running)
	}
}
