// control/store.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with hot-reload propagation.

package control

import (
	"sync"
)

// Store keeps the current Config and notifies listeners on replacement.
type Store struct {
	mu        sync.RWMutex
	config    Config
	path      string
	listeners []func(old, cur Config)
}

// NewStore initializes a store with cfg loaded from path (may be empty).
func NewStore(cfg Config, path string) *Store {
	return &Store{config: cfg, path: path}
}

// Snapshot returns a copy of the current config.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// OnReload registers a listener called synchronously after each Set.
func (s *Store) OnReload(fn func(old, cur Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Set validates and installs cfg, then dispatches listeners.
func (s *Store) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	old := s.config
	s.config = cfg
	listeners := append([]func(old, cur Config){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(old, cfg)
	}
	return nil
}

// Reload re-reads the file the store was created from. The current config
// is kept on error.
func (s *Store) Reload() error {
	cfg, err := LoadConfig(s.path)
	if err != nil {
		return err
	}
	return s.Set(cfg)
}
