package local

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/wschat/internal/types"
)

const messagesFile = "messages.jsonl"

// Store keeps workspaces under root:
//
//	workspaces/index.json             workspace records
//	workspaces/<id>/participants.json participant records
//	workspaces/<id>/messages.jsonl    one message per line, append-only
//	users/<id>.json                   profile documents
type Store struct {
	root   string
	logger *slog.Logger

	// dirMu guards the workspace index, participant and profile files.
	dirMu sync.Mutex

	mu    sync.Mutex
	locks map[types.WorkspaceID]*sync.Mutex
	pokes map[types.WorkspaceID]map[chan struct{}]struct{}
}

// Open creates a store rooted at the given directory.
func Open(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(root, "workspaces"), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{
		root:   root,
		logger: logger,
		locks:  make(map[types.WorkspaceID]*sync.Mutex),
		pokes:  make(map[types.WorkspaceID]map[chan struct{}]struct{}),
	}, nil
}

// Close is a no-op; subscriptions are released by their own cancel funcs.
func (s *Store) Close() error {
	return nil
}

func (s *Store) workspaceDir(id types.WorkspaceID) string {
	return filepath.Join(s.root, "workspaces", string(id))
}

func (s *Store) messagesPath(id types.WorkspaceID) string {
	return filepath.Join(s.workspaceDir(id), messagesFile)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, "workspaces", "index.json")
}

func (s *Store) participantsPath(id types.WorkspaceID) string {
	return filepath.Join(s.workspaceDir(id), "participants.json")
}

func (s *Store) profilePath(id types.UserID) string {
	return filepath.Join(s.root, "users", string(id)+".json")
}

// getLock returns the per-workspace mutex, creating one if it doesn't exist.
func (s *Store) getLock(id types.WorkspaceID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[id] = lock
	return lock
}

func (s *Store) addPoke(id types.WorkspaceID) chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pokes[id] == nil {
		s.pokes[id] = make(map[chan struct{}]struct{})
	}
	s.pokes[id][ch] = struct{}{}
	return ch
}

func (s *Store) removePoke(id types.WorkspaceID, ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pokes[id], ch)
	if len(s.pokes[id]) == 0 {
		delete(s.pokes, id)
	}
}

// poke wakes in-process subscribers without waiting for the file watcher.
func (s *Store) poke(id types.WorkspaceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.pokes[id] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// writeJSON marshals v with indentation and writes it atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// readJSON decodes path into v. It reports false when the file is missing.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
