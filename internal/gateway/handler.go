package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/TalexCK/GameVoting/internal/game"
	"github.com/TalexCK/GameVoting/internal/games"
	"github.com/TalexCK/GameVoting/internal/history"
	"github.com/TalexCK/GameVoting/internal/party"
	"github.com/TalexCK/GameVoting/internal/voting"
)

// readyCooldown is the minimum gap between ready toggles per player, which
// stops toggle spam from flapping the countdown.
const readyCooldown = time.Second

// Handler exposes the lobby over HTTP and WebSocket.
type Handler struct {
	machine     *voting.SessionMachine
	coordinator *game.Coordinator
	registry    *games.Registry
	parties     *party.Manager
	store       history.Store
	cm          *ConnectionManager
	clock       clockwork.Clock

	cooldownMu sync.Mutex
	lastToggle map[uuid.UUID]time.Time
}

func NewHandler(machine *voting.SessionMachine, coordinator *game.Coordinator, registry *games.Registry,
	parties *party.Manager, store history.Store, cm *ConnectionManager, clock clockwork.Clock) *Handler {
	return &Handler{
		machine:     machine,
		coordinator: coordinator,
		registry:    registry,
		parties:     parties,
		store:       store,
		cm:          cm,
		clock:       clock,
		lastToggle:  map[uuid.UUID]time.Time{},
	}
}

// RegisterRoutes attaches every lobby route to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/lobby/state", h.handleLobbyState)
	mux.HandleFunc("/api/lobby/games", h.handleListGames)

	mux.HandleFunc("/api/vote/prestart", h.handlePreStart)
	mux.HandleFunc("/api/vote/preready", h.handlePreReady)
	mux.HandleFunc("/api/vote/start", h.handleStartVoting)
	mux.HandleFunc("/api/vote/stop", h.handleStopVoting)
	mux.HandleFunc("/api/vote/cast", h.handleCastVote)
	mux.HandleFunc("/api/vote/ready", h.handleToggleReady)
	mux.HandleFunc("/api/vote/forcestart", h.handleForceStart)
	mux.HandleFunc("/api/vote/clear", h.handleClear)
	mux.HandleFunc("/api/vote/join", h.handleJoinGame)

	mux.HandleFunc("/api/sessions", h.handleListSessions)
	mux.HandleFunc("/api/sessions/", h.handleSessionSubpath)

	mux.HandleFunc("/api/party/create", h.handlePartyCreate)
	mux.HandleFunc("/api/party/invite", h.handlePartyInvite)
	mux.HandleFunc("/api/party/accept", h.handlePartyAccept)
	mux.HandleFunc("/api/party/decline", h.handlePartyDecline)
	mux.HandleFunc("/api/party/leave", h.handlePartyLeave)
	mux.HandleFunc("/api/party/kick", h.handlePartyKick)
	mux.HandleFunc("/api/party/transfer", h.handlePartyTransfer)
	mux.HandleFunc("/api/party", h.handlePartyGet)

	mux.HandleFunc("/ws/lobby", h.handleLobbyConnection)
	mux.HandleFunc("/ws/stats", h.handleConnectionStats)

	log.Info().Msg("lobby routes registered")
}

type playerRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
	TargetID uuid.UUID `json:"target_id,omitempty"`
	GameID   string    `json:"game_id,omitempty"`
	Duration int       `json:"duration_minutes,omitempty"`
}

func (h *Handler) handleLobbyState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := h.machine.Snapshot()
	lines := voting.RenderLines(snap, func(id string) (string, bool) {
		g, ok := h.registry.Get(id)
		return g.Name, ok
	})
	writeJSON(w, map[string]interface{}{
		"state": snap,
		"lines": lines,
	})
}

func (h *Handler) handleListGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.registry.List())
}

func (h *Handler) handlePreStart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if err := h.machine.RequestPreVoteReady(req.Duration); err != nil {
		writeVotingError(w, err)
		return
	}
	writeJSON(w, h.machine.Snapshot())
}

func (h *Handler) handlePreReady(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if req.PlayerID == uuid.Nil {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}
	if !h.allowToggle(req.PlayerID) {
		http.Error(w, "ready toggled too quickly", http.StatusTooManyRequests)
		return
	}
	ready, err := h.machine.TogglePreVoteReady(req.PlayerID)
	if err != nil {
		writeVotingError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ready": ready, "state": h.machine.Snapshot()})
}

func (h *Handler) handleStartVoting(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if err := h.machine.StartVoting(req.Duration, req.PlayerID); err != nil {
		writeVotingError(w, err)
		return
	}
	writeJSON(w, h.machine.Snapshot())
}

func (h *Handler) handleStopVoting(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.decodePost(w, r); !ok {
		return
	}
	results, err := h.machine.StopVoting()
	if err != nil {
		writeVotingError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"results": results, "state": h.machine.Snapshot()})
}

func (h *Handler) handleCastVote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if req.PlayerID == uuid.Nil || req.GameID == "" {
		http.Error(w, "player_id and game_id are required", http.StatusBadRequest)
		return
	}
	result, err := h.machine.Vote(req.PlayerID, req.GameID)
	if err != nil {
		writeVotingError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"result":     result,
		"selections": h.machine.Selections(req.PlayerID),
	})
}

func (h *Handler) handleToggleReady(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if req.PlayerID == uuid.Nil {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}
	if !h.allowToggle(req.PlayerID) {
		http.Error(w, "ready toggled too quickly", http.StatusTooManyRequests)
		return
	}
	ready, err := h.machine.ToggleReady(req.PlayerID)
	if err != nil {
		writeVotingError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ready": ready, "state": h.machine.Snapshot()})
}

func (h *Handler) handleForceStart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	// uuid.Nil means a console / dashboard initiated force start.
	if err := h.machine.ForceStart(req.PlayerID); err != nil {
		writeVotingError(w, err)
		return
	}
	writeJSON(w, h.machine.Snapshot())
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.decodePost(w, r); !ok {
		return
	}
	h.coordinator.Shutdown(r.Context())
	h.machine.Clear()
	writeJSON(w, h.machine.Snapshot())
}

func (h *Handler) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if req.PlayerID == uuid.Nil {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}
	if err := h.coordinator.Join(r.Context(), req.PlayerID); err != nil {
		if errors.Is(err, voting.ErrWrongPhase) {
			http.Error(w, "no game is running", http.StatusConflict)
			return
		}
		log.Error().Err(err).Msg("failed to route player to game")
		http.Error(w, "failed to join game", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	recs, err := h.store.PagedSessions(r.Context(), page)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	total, err := h.store.TotalSessions(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to count sessions")
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"page":      page,
		"page_size": history.PageSize,
		"total":     total,
		"sessions":  recs,
	})
}

// handleSessionSubpath serves /api/sessions/top and /api/sessions/{id}.
func (h *Handler) handleSessionSubpath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")

	if rest == "top" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		winners, err := h.store.TopWinners(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to aggregate winners")
			http.Error(w, "failed to aggregate winners", http.StatusInternalServerError)
			return
		}
		writeJSON(w, winners)
		return
	}

	id, err := uuid.Parse(rest)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	rec, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("failed to get session")
		http.Error(w, "failed to get session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

func (h *Handler) handlePartyCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	p, err := h.parties.Create(req.PlayerID)
	if err != nil {
		writePartyError(w, err)
		return
	}
	writeJSON(w, p)
}

func (h *Handler) handlePartyInvite(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if err := h.parties.Invite(req.PlayerID, req.TargetID); err != nil {
		writePartyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePartyAccept(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	p, err := h.parties.Accept(req.PlayerID)
	if err != nil {
		writePartyError(w, err)
		return
	}
	writeJSON(w, p)
}

func (h *Handler) handlePartyDecline(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if err := h.parties.Decline(req.PlayerID); err != nil {
		writePartyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePartyLeave(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if err := h.parties.Leave(req.PlayerID); err != nil {
		writePartyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePartyKick(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if err := h.parties.Kick(req.PlayerID, req.TargetID); err != nil {
		writePartyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePartyTransfer(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	if err := h.parties.Transfer(req.PlayerID, req.TargetID); err != nil {
		writePartyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePartyGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := uuid.Parse(r.URL.Query().Get("player_id"))
	if err != nil {
		http.Error(w, "invalid player_id", http.StatusBadRequest)
		return
	}
	p := h.parties.PartyOf(playerID)
	if p == nil {
		http.Error(w, "not in a party", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

// handleLobbyConnection upgrades a client to the lobby event stream.
func (h *Handler) handleLobbyConnection(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(r.URL.Query().Get("player_id"))
	if err != nil {
		http.Error(w, "invalid player_id", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := h.cm.UpgradeConnection(w, r, playerID, name); err != nil {
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

func (h *Handler) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.cm.Stats())
}

// allowToggle enforces the per-player ready cooldown.
func (h *Handler) allowToggle(p uuid.UUID) bool {
	now := h.clock.Now()
	h.cooldownMu.Lock()
	defer h.cooldownMu.Unlock()
	if last, ok := h.lastToggle[p]; ok && now.Sub(last) < readyCooldown {
		return false
	}
	h.lastToggle[p] = now
	return true
}

func (h *Handler) decodePost(w http.ResponseWriter, r *http.Request) (playerRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return playerRequest{}, false
	}
	var req playerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return playerRequest{}, false
		}
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeVotingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, voting.ErrWrongPhase):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, voting.ErrUnknownCandidate), errors.Is(err, voting.ErrNoCandidates):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, voting.ErrNotStarter):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, voting.ErrNoWinner):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("unexpected session error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writePartyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, party.ErrNotLeader):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, party.ErrAlreadyInParty), errors.Is(err, party.ErrPartyFull):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, party.ErrNotInParty), errors.Is(err, party.ErrNoInvite),
		errors.Is(err, party.ErrInviteExpired), errors.Is(err, party.ErrSelfInvite):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("unexpected party error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
