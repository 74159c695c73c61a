package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/switchboard-cli/switchboard/internal/paths"
)

// Normalizable is implemented by every persisted config type so Store can
// apply the read-side "normalize, don't migrate" discipline uniformly.
type Normalizable interface {
	Normalize()
}

// errCorruptConfig marks a config file that exists but does not parse.
var errCorruptConfig = errors.New("config: corrupt file")

// Store persists a single normalizable config value (T) as indented JSON,
// guarded by a RWMutex and written with atomic temp-file-then-rename so a
// crash mid-write never leaves a truncated file on disk. PT is T's pointer
// type, which is where Normalize is actually implemented.
type Store[T any, PT interface {
	*T
	Normalizable
}] struct {
	mu    sync.RWMutex
	path  string
	value T
}

// NewStore loads filename (relative to the store directory); if it doesn't
// exist yet, def is normalized and written as the initial value.
func NewStore[T any, PT interface {
	*T
	Normalizable
}](filename string, def T) (*Store[T, PT], error) {
	if err := paths.EnsureDir(paths.GetStoreDir()); err != nil {
		return nil, err
	}
	s := &Store[T, PT]{
		path:  filepath.Join(paths.GetStoreDir(), filename),
		value: def,
	}
	if err := s.load(); err != nil {
		if !os.IsNotExist(err) && !errors.Is(err, errCorruptConfig) {
			return nil, err
		}
		s.value = def
		PT(&s.value).Normalize()
		if err := s.Save(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load reads the file and normalizes it in place. A corrupt file is treated
// the same as a missing one: the in-memory default survives and the caller
// (NewStore) rewrites it, per the "corrupt config is silently rewritten"
// error-handling rule — no backup of the unreadable content is kept, since
// the on-disk form is fully regenerable.
func (s *Store[T, PT]) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.value); err != nil {
		return errCorruptConfig
	}
	PT(&s.value).Normalize()
	return nil
}

func (s *Store[T, PT]) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.value, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return paths.WriteFileAtomic(s.path, data, 0644)
}

// Get returns a copy of the current value.
func (s *Store[T, PT]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Update mutates the value under lock, normalizes it, and persists it.
func (s *Store[T, PT]) Update(fn func(*T)) error {
	s.mu.Lock()
	fn(&s.value)
	PT(&s.value).Normalize()
	s.mu.Unlock()
	return s.Save()
}
