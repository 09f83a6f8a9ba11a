package voting

import "github.com/google/uuid"

// ReadyGate tracks which of the current participants have acknowledged
// readiness. The gate never snapshots who was present when it opened: AllReady
// is evaluated against the participant count the caller passes in, so a player
// joining mid-phase raises the bar and a player leaving can satisfy it.
type ReadyGate struct {
	ready map[uuid.UUID]struct{}

	// minParticipants is an extra floor for the pre-vote gate: below this
	// many online participants the gate can never open, no matter how many
	// are ready. Zero disables the floor.
	minParticipants int
}

// NewReadyGate returns an empty gate with no participant floor.
func NewReadyGate() *ReadyGate {
	return &ReadyGate{ready: make(map[uuid.UUID]struct{})}
}

// NewThresholdGate returns a gate that additionally requires at least
// minParticipants participants before it can report AllReady.
func NewThresholdGate(minParticipants int) *ReadyGate {
	return &ReadyGate{
		ready:           make(map[uuid.UUID]struct{}),
		minParticipants: minParticipants,
	}
}

// MarkReady records the participant as ready. Returns false when they already
// were, making repeated calls harmless.
func (g *ReadyGate) MarkReady(id uuid.UUID) bool {
	if _, ok := g.ready[id]; ok {
		return false
	}
	g.ready[id] = struct{}{}
	return true
}

// UnmarkReady removes the participant's ready mark. Returns false when they
// were not ready.
func (g *ReadyGate) UnmarkReady(id uuid.UUID) bool {
	if _, ok := g.ready[id]; !ok {
		return false
	}
	delete(g.ready, id)
	return true
}

// IsReady reports whether the participant has readied up.
func (g *ReadyGate) IsReady(id uuid.UUID) bool {
	_, ok := g.ready[id]
	return ok
}

// ReadyCount returns the number of ready marks held.
func (g *ReadyGate) ReadyCount() int {
	return len(g.ready)
}

// MinParticipants returns the participant floor, zero when disabled.
func (g *ReadyGate) MinParticipants() int {
	return g.minParticipants
}

// AllReady reports whether every one of the given current participants is
// ready. Always false for zero participants, and false below the configured
// participant floor.
func (g *ReadyGate) AllReady(participantCount int) bool {
	if participantCount <= 0 {
		return false
	}
	if participantCount < g.minParticipants {
		return false
	}
	return len(g.ready) >= participantCount
}

// Reset clears every ready mark for a fresh cycle.
func (g *ReadyGate) Reset() {
	g.ready = make(map[uuid.UUID]struct{})
}
