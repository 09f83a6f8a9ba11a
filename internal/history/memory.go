package history

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps vote history in process. Used when the database is
// disabled and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []SessionRecord
	byID map[uuid.UUID]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[uuid.UUID]int{}}
}

func (s *MemoryStore) SaveSession(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.SessionID]; ok {
		return nil
	}
	s.byID[rec.SessionID] = len(s.recs)
	s.recs = append(s.recs, rec)
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return s.recs[i], nil
}

func (s *MemoryStore) PagedSessions(_ context.Context, page int) ([]SessionRecord, error) {
	if page < 1 {
		page = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := append([]SessionRecord(nil), s.recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	start := (page - 1) * PageSize
	if start >= len(sorted) {
		return nil, nil
	}
	end := start + PageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[start:end], nil
}

func (s *MemoryStore) TopWinners(_ context.Context, limit int) ([]WinnerCount, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	wins := map[string]*WinnerCount{}
	var order []string
	for _, rec := range s.recs {
		w, ok := wins[rec.WinningGameID]
		if !ok {
			w = &WinnerCount{GameID: rec.WinningGameID, GameName: rec.WinningGameName}
			wins[rec.WinningGameID] = w
			order = append(order, rec.WinningGameID)
		}
		w.Wins++
	}

	out := make([]WinnerCount, 0, len(order))
	for _, id := range order {
		out = append(out, *wins[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Wins > out[j].Wins })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) TotalSessions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs), nil
}

func (s *MemoryStore) Close() {}
