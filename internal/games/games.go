package games

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Game is a votable game option loaded from games.yml.
type Game struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description []string `yaml:"description,omitempty" json:"description,omitempty"`
	Icon        string   `yaml:"icon,omitempty" json:"icon,omitempty"`
	// TaskRef is the fleet task used to provision a backend instance for
	// this game. Empty means the game cannot be started automatically.
	TaskRef string `yaml:"task" json:"task,omitempty"`
}

type gamesFile struct {
	Games []Game `yaml:"games"`
}

// Registry holds the configured game list. It is reloadable at runtime, so
// reads go through a mutex.
type Registry struct {
	mu    sync.RWMutex
	path  string
	games []Game
	byID  map[string]Game
}

// LoadRegistry reads the game list from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the game list from disk, replacing the current set.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read games config: %w", err)
	}

	var f gamesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse games config: %w", err)
	}

	byID := make(map[string]Game, len(f.Games))
	for _, g := range f.Games {
		if g.ID == "" {
			return fmt.Errorf("game entry with empty id in %s", r.path)
		}
		if _, dup := byID[g.ID]; dup {
			return fmt.Errorf("duplicate game id %q in %s", g.ID, r.path)
		}
		if g.Name == "" {
			return fmt.Errorf("game %q has no name", g.ID)
		}
		byID[g.ID] = g
	}

	r.mu.Lock()
	r.games = f.Games
	r.byID = byID
	r.mu.Unlock()
	return nil
}

// Get returns the game with the given id.
func (r *Registry) Get(id string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byID[id]
	return g, ok
}

// List returns all configured games in file order.
func (r *Registry) List() []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Game, len(r.games))
	copy(out, r.games)
	return out
}

// Has reports whether a game with the given id is configured.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Count returns the number of configured games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
