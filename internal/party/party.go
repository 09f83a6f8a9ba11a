// Package party groups lobby players so they can queue into games together.
package party

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// MaxSize is the member cap per party, leader included.
	MaxSize = 8
	// InviteTTL is how long an invite stays valid.
	InviteTTL = 30 * time.Second
)

var (
	ErrAlreadyInParty = errors.New("party: player already in a party")
	ErrNotInParty     = errors.New("party: player not in a party")
	ErrNotLeader      = errors.New("party: only the leader can do that")
	ErrPartyFull      = errors.New("party: party is full")
	ErrNoInvite       = errors.New("party: no pending invite")
	ErrInviteExpired  = errors.New("party: invite expired")
	ErrSelfInvite     = errors.New("party: cannot invite yourself")
)

// Party is one group of players. Members keeps join order; the leader is
// always Members[0].
type Party struct {
	ID      uuid.UUID
	Leader  uuid.UUID
	Members []uuid.UUID
}

func (p *Party) size() int { return len(p.Members) }

func (p *Party) has(id uuid.UUID) bool {
	for _, m := range p.Members {
		if m == id {
			return true
		}
	}
	return false
}

type invite struct {
	partyID uuid.UUID
	from    uuid.UUID
	expires time.Time
}

// Manager tracks all parties and pending invites in the lobby.
type Manager struct {
	clock clockwork.Clock

	mu       sync.Mutex
	parties  map[uuid.UUID]*Party // party id -> party
	byPlayer map[uuid.UUID]*Party // member id -> party
	invites  map[uuid.UUID]invite // invitee id -> pending invite
}

func NewManager(clock clockwork.Clock) *Manager {
	return &Manager{
		clock:    clock,
		parties:  map[uuid.UUID]*Party{},
		byPlayer: map[uuid.UUID]*Party{},
		invites:  map[uuid.UUID]invite{},
	}
}

// Create starts a new party led by the given player.
func (m *Manager) Create(leader uuid.UUID) (*Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byPlayer[leader]; ok {
		return nil, ErrAlreadyInParty
	}
	p := &Party{
		ID:      uuid.New(),
		Leader:  leader,
		Members: []uuid.UUID{leader},
	}
	m.parties[p.ID] = p
	m.byPlayer[leader] = p
	log.Info().Str("party_id", p.ID.String()).Str("leader", leader.String()).Msg("party created")
	return m.copyOf(p), nil
}

// Invite asks another player to join the inviter's party. Only the leader
// may invite. A newer invite replaces any pending one for the same invitee.
func (m *Manager) Invite(from, to uuid.UUID) error {
	if from == to {
		return ErrSelfInvite
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byPlayer[from]
	if !ok {
		return ErrNotInParty
	}
	if p.Leader != from {
		return ErrNotLeader
	}
	if _, ok := m.byPlayer[to]; ok {
		return ErrAlreadyInParty
	}
	if p.size() >= MaxSize {
		return ErrPartyFull
	}

	m.invites[to] = invite{
		partyID: p.ID,
		from:    from,
		expires: m.clock.Now().Add(InviteTTL),
	}
	return nil
}

// Accept joins the invitee to the inviting party, consuming the invite.
func (m *Manager) Accept(p uuid.UUID) (*Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[p]
	if !ok {
		return nil, ErrNoInvite
	}
	delete(m.invites, p)

	if m.clock.Now().After(inv.expires) {
		return nil, ErrInviteExpired
	}
	party, ok := m.parties[inv.partyID]
	if !ok {
		// Party disbanded while the invite was pending.
		return nil, ErrNoInvite
	}
	if _, ok := m.byPlayer[p]; ok {
		return nil, ErrAlreadyInParty
	}
	if party.size() >= MaxSize {
		return nil, ErrPartyFull
	}

	party.Members = append(party.Members, p)
	m.byPlayer[p] = party
	return m.copyOf(party), nil
}

// Decline drops a pending invite.
func (m *Manager) Decline(p uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[p]; !ok {
		return ErrNoInvite
	}
	delete(m.invites, p)
	return nil
}

// Leave removes a player from their party. When the leader leaves, the
// longest-standing remaining member takes over; an empty party disbands.
func (m *Manager) Leave(p uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(p)
}

// Kick ejects a member. Leader only; the leader cannot kick themselves.
func (m *Manager) Kick(leader, target uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byPlayer[leader]
	if !ok {
		return ErrNotInParty
	}
	if p.Leader != leader {
		return ErrNotLeader
	}
	if target == leader || !p.has(target) {
		return ErrNotInParty
	}
	return m.removeLocked(target)
}

// Transfer hands leadership to another member of the same party.
func (m *Manager) Transfer(leader, target uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byPlayer[leader]
	if !ok {
		return ErrNotInParty
	}
	if p.Leader != leader {
		return ErrNotLeader
	}
	if target == leader || !p.has(target) {
		return ErrNotInParty
	}
	p.Leader = target
	log.Info().
		Str("party_id", p.ID.String()).
		Str("leader", target.String()).
		Msg("party leadership transferred")
	return nil
}

// HandleQuit clears party state for a disconnecting player.
func (m *Manager) HandleQuit(p uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, p)
	_ = m.removeLocked(p)
}

// PartyOf returns a copy of the player's party, nil when they have none.
func (m *Manager) PartyOf(p uuid.UUID) *Party {
	m.mu.Lock()
	defer m.mu.Unlock()
	party, ok := m.byPlayer[p]
	if !ok {
		return nil
	}
	return m.copyOf(party)
}

func (m *Manager) removeLocked(p uuid.UUID) error {
	party, ok := m.byPlayer[p]
	if !ok {
		return ErrNotInParty
	}
	delete(m.byPlayer, p)

	members := party.Members[:0]
	for _, member := range party.Members {
		if member != p {
			members = append(members, member)
		}
	}
	party.Members = members

	if len(party.Members) == 0 {
		delete(m.parties, party.ID)
		log.Info().Str("party_id", party.ID.String()).Msg("party disbanded")
		return nil
	}
	if party.Leader == p {
		party.Leader = party.Members[0]
		log.Info().
			Str("party_id", party.ID.String()).
			Str("leader", party.Leader.String()).
			Msg("party leadership transferred")
	}
	return nil
}

func (m *Manager) copyOf(p *Party) *Party {
	return &Party{
		ID:      p.ID,
		Leader:  p.Leader,
		Members: append([]uuid.UUID(nil), p.Members...),
	}
}
