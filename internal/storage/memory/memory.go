// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/storage"
	"github.com/ridemap/ridemap/pkg/core"
)

// Backend keeps trips and accounts in memory and exports them to JSON on Dump
// and Close.
type Backend struct {
	cfg config.MemoryConfig

	trips    map[string][]core.Trip // keyed by session ID
	accounts map[string]core.Account

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		trips:    make(map[string][]core.Trip),
		accounts: make(map[string]core.Account),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the stored data if an output directory is configured
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.Dump()
}

// AddTrip stores a trip and assigns its ID
func (b *Backend) AddTrip(t *core.Trip) error {
	if t.SessionID == "" {
		return fmt.Errorf("trip has no session ID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	t.ID = b.idCounter

	stored := *t
	if t.Route != nil {
		r := *t.Route
		r.Path = append([]core.Coordinate(nil), t.Route.Path...)
		stored.Route = &r
	}
	b.trips[t.SessionID] = append(b.trips[t.SessionID], stored)
	return nil
}

// ListTrips returns the trips of a session, oldest first
func (b *Backend) ListTrips(sessionID string) ([]core.Trip, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	trips := b.trips[sessionID]
	out := make([]core.Trip, len(trips))
	copy(out, trips)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveAccount stores or replaces the account of a session
func (b *Backend) SaveAccount(a *core.Account) error {
	if a.SessionID == "" {
		return fmt.Errorf("account has no session ID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[a.SessionID] = *a
	return nil
}

// GetAccount returns the account of a session
func (b *Backend) GetAccount(sessionID string) (core.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.accounts[sessionID]
	if !ok {
		return core.Account{}, fmt.Errorf("account for session %q: %w", sessionID, storage.ErrNotFound)
	}
	return a, nil
}

// GetExportedFilePath returns the path of the last export, if any
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
