package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/user/wschat/internal/types"
)

// Append writes msg to the workspace's message log. The store assigns the id
// and a timestamp strictly after every message already in the log.
func (s *Store) Append(_ context.Context, workspace types.WorkspaceID, msg *types.Message) (types.MessageID, error) {
	if workspace == "" {
		return "", fmt.Errorf("%w: %w", types.ErrWrite, types.ErrNoWorkspace)
	}
	lock := s.getLock(workspace)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(s.workspaceDir(workspace), 0o755); err != nil {
		return "", fmt.Errorf("%w: create workspace dir: %w", types.ErrWrite, err)
	}

	existing, err := s.readMessages(workspace)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrWrite, err)
	}

	stored := *msg
	stored.ID = types.NewMessageID()
	stored.Timestamp = time.Now().UTC()
	if n := len(existing); n > 0 && !stored.Timestamp.After(existing[n-1].Timestamp) {
		stored.Timestamp = existing[n-1].Timestamp.Add(time.Microsecond)
	}
	if stored.Type == "" {
		stored.Type = types.MessageTypeUser
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("%w: marshal message: %w", types.ErrWrite, err)
	}

	f, err := os.OpenFile(s.messagesPath(workspace), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: open messages file: %w", types.ErrWrite, err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("%w: write message: %w", types.ErrWrite, err)
	}

	s.poke(workspace)
	return stored.ID, nil
}

// Messages returns the workspace's messages in timestamp order.
func (s *Store) Messages(_ context.Context, workspace types.WorkspaceID) ([]*types.Message, error) {
	return s.readMessages(workspace)
}

// readMessages parses the log. A trailing line without its newline belongs to
// a write still in progress and is skipped.
func (s *Store) readMessages(workspace types.WorkspaceID) ([]*types.Message, error) {
	data, err := os.ReadFile(s.messagesPath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.Message{}, nil
		}
		return nil, fmt.Errorf("read messages file: %w", err)
	}

	lines := bytes.Split(data, []byte{'\n'})
	// The final element is either empty or an incomplete line.
	lines = lines[:len(lines)-1]

	msgs := make([]*types.Message, 0, len(lines))
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m types.Message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

// Subscribe delivers the full ordered message list now and again after every
// change to the log. Callbacks run on one goroutine and must not call the
// returned cancel func.
func (s *Store) Subscribe(ctx context.Context, q types.Query, onSnapshot func([]*types.Message), onError func(error)) (func(), error) {
	if q.Workspace == "" {
		return nil, types.ErrNoWorkspace
	}
	dir := s.workspaceDir(q.Workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	poke := s.addPoke(q.Workspace)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		defer s.removePoke(q.Workspace, poke)
		defer watcher.Close()
		s.watch(ctx, q, watcher, poke, done, onSnapshot, onError)
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}, nil
}

func (s *Store) watch(
	ctx context.Context,
	q types.Query,
	watcher *fsnotify.Watcher,
	poke <-chan struct{},
	done <-chan struct{},
	onSnapshot func([]*types.Message),
	onError func(error),
) {
	var lastCount int
	var lastID types.MessageID
	first := true

	// deliver reports false once the subscription has failed.
	deliver := func() bool {
		msgs, err := s.readMessages(q.Workspace)
		if err != nil {
			onError(fmt.Errorf("%w: %w", types.ErrSubscribe, err))
			return false
		}
		var tail types.MessageID
		if len(msgs) > 0 {
			tail = msgs[len(msgs)-1].ID
		}
		if !first && len(msgs) == lastCount && tail == lastID {
			return true
		}
		first = false
		lastCount, lastID = len(msgs), tail
		if q.Direction == types.Desc {
			reverse(msgs)
		}
		onSnapshot(msgs)
		return true
	}

	if !deliver() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-poke:
			if !deliver() {
				return
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != messagesFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !deliver() {
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("message watcher error", "workspace_id", q.Workspace, "error", err)
			onError(fmt.Errorf("%w: %w", types.ErrSubscribe, err))
			return
		}
	}
}

func reverse(msgs []*types.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
