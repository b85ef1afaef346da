// Package prefs remembers small client-side values between runs, such as
// the signed-in identity.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/wschat/internal/types"
)

const (
	KeyUserID      = "user_id"
	KeyDisplayName = "display_name"
	KeyEmail       = "email"
)

// Store is a JSON-file backed key/value map. Every write rewrites the file.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse prefs: %w", err)
	}
	return s, nil
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flushLocked()
}

// Delete removes keys and persists the result.
func (s *Store) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return s.flushLocked()
}

// Identity returns the remembered identity, or nil when nobody signed in.
func (s *Store) Identity() *types.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.values[KeyUserID]
	if id == "" {
		return nil
	}
	return &types.Identity{
		ID:          types.UserID(id),
		DisplayName: s.values[KeyDisplayName],
		Email:       s.values[KeyEmail],
	}
}

// SaveIdentity remembers who signed in.
func (s *Store) SaveIdentity(who types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[KeyUserID] = string(who.ID)
	s.values[KeyDisplayName] = who.DisplayName
	s.values[KeyEmail] = who.Email
	return s.flushLocked()
}

// ClearIdentity forgets the signed-in identity.
func (s *Store) ClearIdentity() error {
	return s.Delete(KeyUserID, KeyDisplayName, KeyEmail)
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create prefs directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename prefs: %w", err)
	}
	return nil
}
