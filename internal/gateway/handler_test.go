package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/TalexCK/GameVoting/internal/game"
	"github.com/TalexCK/GameVoting/internal/games"
	"github.com/TalexCK/GameVoting/internal/history"
	"github.com/TalexCK/GameVoting/internal/party"
	"github.com/TalexCK/GameVoting/internal/voting"
)

type stubProvisioner struct{}

func (stubProvisioner) CreateAndStart(context.Context, string) (string, error) {
	return "", errors.New("not provisioned in tests")
}
func (stubProvisioner) SendToInstance(context.Context, string, string) error   { return nil }
func (stubProvisioner) RunRemoteCommand(context.Context, string, string) error { return nil }

func testHandler(t *testing.T) (*Handler, *voting.SessionMachine, *clockwork.FakeClock, history.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "games.yaml")
	content := "games:\n  - id: bedwars\n    name: Bed Wars\n    task: bedwars-lobby\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	registry, err := games.LoadRegistry(path)
	if err != nil {
		t.Fatal(err)
	}

	clock := clockwork.NewFakeClock()
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	store := history.NewMemoryStore()

	machine := voting.NewSessionMachine(voting.DefaultConfig(), clock, cm, registry, cm, nil)
	coordinator := game.NewCoordinator(game.DefaultConfig(), clock, machine, registry, stubProvisioner{}, store, cm, nil)
	parties := party.NewManager(clock)

	h := NewHandler(machine, coordinator, registry, parties, store, cm, clock)
	return h, machine, clock, store
}

func doJSON(t *testing.T, h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestLobbyStateEndpoint(t *testing.T) {
	h, _, _, _ := testHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/lobby/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		State voting.Snapshot `json:"state"`
		Lines []string        `json:"lines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State.Phase != voting.PhaseIdle {
		t.Errorf("phase = %v", resp.State.Phase)
	}
	if len(resp.Lines) == 0 {
		t.Error("expected rendered lines")
	}
}

func TestVoteFlowOverHTTP(t *testing.T) {
	h, machine, _, _ := testHandler(t)
	player := uuid.New()

	rec := doJSON(t, h, http.MethodPost, "/api/vote/cast", map[string]interface{}{
		"player_id": player, "game_id": "bedwars",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("cast while idle: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/vote/start", map[string]interface{}{
		"player_id": player, "duration_minutes": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if machine.Phase() != voting.PhaseVoting {
		t.Fatalf("phase = %v", machine.Phase())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/vote/cast", map[string]interface{}{
		"player_id": player, "game_id": "parkour",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown game: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/vote/cast", map[string]interface{}{
		"player_id": player, "game_id": "bedwars",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cast: status = %d", rec.Code)
	}
	var castResp struct {
		Result     voting.VoteResult `json:"result"`
		Selections []string          `json:"selections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &castResp); err != nil {
		t.Fatal(err)
	}
	if castResp.Result != voting.VoteAdded || len(castResp.Selections) != 1 {
		t.Errorf("cast response = %+v", castResp)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/vote/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status = %d", rec.Code)
	}
	if machine.Phase() != voting.PhaseReadyCheck {
		t.Fatalf("phase after stop = %v", machine.Phase())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/vote/forcestart", map[string]interface{}{
		"player_id": uuid.New(),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign forcestart: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestReadyToggleCooldown(t *testing.T) {
	h, _, clock, _ := testHandler(t)
	p := uuid.New()

	if !h.allowToggle(p) {
		t.Fatal("first toggle should pass")
	}
	if h.allowToggle(p) {
		t.Fatal("immediate second toggle should be throttled")
	}
	clock.Advance(500 * time.Millisecond)
	if h.allowToggle(p) {
		t.Fatal("toggle within the cooldown should be throttled")
	}
	clock.Advance(600 * time.Millisecond)
	if !h.allowToggle(p) {
		t.Fatal("toggle after the cooldown should pass")
	}

	// Other players have independent cooldowns.
	if !h.allowToggle(uuid.New()) {
		t.Fatal("another player's first toggle should pass")
	}
}

func TestSessionEndpoints(t *testing.T) {
	h, _, _, store := testHandler(t)

	rec1 := history.SessionRecord{
		SessionID:       uuid.New(),
		Timestamp:       time.Now(),
		WinningGameID:   "bedwars",
		WinningGameName: "Bed Wars",
		TotalVotes:      4,
		PlayerCount:     6,
		VoteDetails:     map[string]int{"bedwars": 4},
	}
	if err := store.SaveSession(context.Background(), rec1); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/sessions?page=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var listResp struct {
		Total    int                     `json:"total"`
		Sessions []history.SessionRecord `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if listResp.Total != 1 || len(listResp.Sessions) != 1 {
		t.Errorf("list = %+v", listResp)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+rec1.SessionID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+uuid.New().String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/top?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("top: status = %d", rec.Code)
	}
	var top []history.WinnerCount
	if err := json.Unmarshal(rec.Body.Bytes(), &top); err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Wins != 1 {
		t.Errorf("top = %+v", top)
	}
}

func TestPartyEndpoints(t *testing.T) {
	h, _, _, _ := testHandler(t)
	leader, member := uuid.New(), uuid.New()

	rec := doJSON(t, h, http.MethodPost, "/api/party/create", map[string]interface{}{"player_id": leader})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/party/invite", map[string]interface{}{
		"player_id": leader, "target_id": member,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("invite: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/party/accept", map[string]interface{}{"player_id": member})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/party?player_id="+member.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get party: status = %d", rec.Code)
	}
	var p party.Party
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Leader != leader || len(p.Members) != 2 {
		t.Errorf("party = %+v", p)
	}

	// Invites from a non-leader are forbidden.
	rec = doJSON(t, h, http.MethodPost, "/api/party/invite", map[string]interface{}{
		"player_id": member, "target_id": uuid.New(),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member invite: status = %d", rec.Code)
	}
}
