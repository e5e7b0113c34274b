// Package registry tracks the network addresses of every player that has
// announced itself to this host, so they can be greeted again after a
// server restart without waiting for a new announcement.
package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store persists the address list between server runs.
type Store interface {
	// LoadAddresses returns the previously saved list, oldest first.
	// A store with no saved list returns an empty slice, not an error.
	LoadAddresses() ([]string, error)
	// SaveAddresses replaces the saved list.
	SaveAddresses(addrs []string) error
}

// Registry is the deduplicated, order-preserving list of known player
// addresses. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	store Store
	addrs []string
	seen  map[string]bool
}

// New creates a registry backed by store, seeded with the addresses
// saved by previous runs.
func New(store Store) (*Registry, error) {
	addrs, err := store.LoadAddresses()
	if err != nil {
		return nil, fmt.Errorf("failed to load player addresses: %w", err)
	}

	r := &Registry{
		store: store,
		seen:  make(map[string]bool, len(addrs)),
	}
	for _, addr := range addrs {
		if addr == "" || r.seen[addr] {
			continue
		}
		r.addrs = append(r.addrs, addr)
		r.seen[addr] = true
	}

	log.Info().
		Int("players", len(r.addrs)).
		Msg("Player registry initialized")

	return r, nil
}

// Register records addr as a known player. It returns true if the
// address was new. Known addresses are left untouched, keeping the list
// in first-seen order. A failed save is logged but does not undo the
// registration; the list is rewritten on the next new address.
func (r *Registry) Register(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[addr] {
		return false
	}
	r.addrs = append(r.addrs, addr)
	r.seen[addr] = true

	if err := r.store.SaveAddresses(r.addrs); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Failed to persist player address")
	} else {
		log.Info().Str("addr", addr).Int("players", len(r.addrs)).Msg("Player registered")
	}
	return true
}

// Addresses returns a copy of the known addresses in first-seen order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addrs := make([]string, len(r.addrs))
	copy(addrs, r.addrs)
	return addrs
}

// Contains reports whether addr has been registered.
func (r *Registry) Contains(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seen[addr]
}
