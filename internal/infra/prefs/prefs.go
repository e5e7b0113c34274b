// Package prefs persists server preferences to a YAML file: the list of
// known player addresses and the last volume set for each player, so
// both survive restarts. The player list is stored as a single
// comma-joined string, matching the historic preference format.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultVolume is used for players with no saved volume.
const DefaultVolume = 50

// file is the on-disk format.
type file struct {
	Players string         `yaml:"players,omitempty"`
	Volumes map[string]int `yaml:"volumes,omitempty"`
}

// Store reads and writes the preferences file. All methods are safe for
// concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	data file
}

// Open loads the preferences at path, creating the parent directory if
// needed. A missing file yields an empty store; a corrupt one is an
// error so it is not silently overwritten.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create preferences directory: %w", err)
	}

	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("No existing preferences, starting fresh")
			return s, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}

	return s, nil
}

// LoadAddresses returns the saved player addresses, oldest first.
func (s *Store) LoadAddresses() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Players == "" {
		return nil, nil
	}
	var addrs []string
	for _, addr := range strings.Split(s.data.Players, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// SaveAddresses replaces the saved player address list.
func (s *Store) SaveAddresses(addrs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Players = strings.Join(addrs, ",")
	return s.save()
}

// Volume returns the saved volume for the player with the given id, or
// DefaultVolume if none has been saved.
func (s *Store) Volume(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.data.Volumes[id]; ok {
		return v
	}
	return DefaultVolume
}

// SetVolume saves the volume for the player with the given id, clamped
// to the 0-100 range.
func (s *Store) SetVolume(id string, volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}

	if s.data.Volumes == nil {
		s.data.Volumes = make(map[string]int)
	}
	s.data.Volumes[id] = volume
	return s.save()
}

// save writes the current state to disk. Callers must hold s.mu.
func (s *Store) save() error {
	data, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
