package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/wschat/internal/types"
)

type fakeSub struct {
	query      types.Query
	onSnapshot func([]*types.Message)
	onError    func(error)
	active     bool
}

// fakeSource records subscriptions and lets tests push snapshots by hand.
type fakeSource struct {
	mu           sync.Mutex
	subs         []*fakeSub
	subscribeErr error
}

func (f *fakeSource) Subscribe(_ context.Context, q types.Query, onSnapshot func([]*types.Message), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &fakeSub{query: q, onSnapshot: onSnapshot, onError: onError, active: true}
	f.subs = append(f.subs, sub)
	return func() {
		f.mu.Lock()
		sub.active = false
		f.mu.Unlock()
	}, nil
}

func (f *fakeSource) activeWorkspaces() []types.WorkspaceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.WorkspaceID
	for _, s := range f.subs {
		if s.active {
			out = append(out, s.query.Workspace)
		}
	}
	return out
}

// all returns every subscription ever opened for workspace, active or not.
func (f *fakeSource) all(workspace types.WorkspaceID) []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, s := range f.subs {
		if s.query.Workspace == workspace {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSource) push(workspace types.WorkspaceID, msgs []*types.Message) {
	for _, s := range f.all(workspace) {
		f.mu.Lock()
		active := s.active
		f.mu.Unlock()
		if active {
			s.onSnapshot(msgs)
		}
	}
}

func (f *fakeSource) fail(workspace types.WorkspaceID, err error) {
	for _, s := range f.all(workspace) {
		f.mu.Lock()
		active := s.active
		f.mu.Unlock()
		if active {
			s.onError(err)
		}
	}
}

type appendCall struct {
	workspace types.WorkspaceID
	msg       types.Message
}

// fakeSink assigns sequential ids. When block is non-nil each Append waits
// for a value on it.
type fakeSink struct {
	mu    sync.Mutex
	calls []appendCall
	err   error
	block chan struct{}
}

func (f *fakeSink) Append(ctx context.Context, workspace types.WorkspaceID, msg *types.Message) (types.MessageID, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, appendCall{workspace: workspace, msg: *msg})
	return types.MessageID(fmt.Sprintf("m%d", len(f.calls))), nil
}

func (f *fakeSink) appended() []appendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]appendCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeRelay records requests. When gate is non-nil each call waits on it.
type fakeRelay struct {
	mu    sync.Mutex
	reqs  []types.RelayRequest
	err   error
	gate  chan struct{}
	calls chan struct{}
}

func newFakeRelay(err error) *fakeRelay {
	return &fakeRelay{err: err, calls: make(chan struct{}, 16)}
}

func (f *fakeRelay) Relay(_ context.Context, req types.RelayRequest) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	err := f.err
	f.mu.Unlock()
	f.calls <- struct{}{}
	return err
}

func (f *fakeRelay) requests() []types.RelayRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.RelayRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	ended []types.WorkspaceID
	err   error
}

func (f *fakeNotifier) EndSession(_ context.Context, workspace types.WorkspaceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, workspace)
	return f.err
}

// fakeDirectory serves participants from a map.
type fakeDirectory struct {
	types.Directory
	participants map[types.UserID]*types.Participant
	err          error
}

func (f *fakeDirectory) GetParticipant(_ context.Context, _ types.WorkspaceID, user types.UserID) (*types.Participant, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.participants[user]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", user, types.ErrNotFound)
	}
	return p, nil
}

var errBoom = errors.New("boom")

func userMsg(id, sender, text string, at int) *types.Message {
	return &types.Message{
		ID:         types.MessageID(id),
		SenderID:   types.UserID(sender),
		SenderName: sender,
		Text:       text,
		Type:       types.MessageTypeUser,
		Timestamp:  time.Unix(int64(at), 0),
	}
}

func agentMsg(id, text string, at int) *types.Message {
	return &types.Message{
		ID:         types.MessageID(id),
		SenderID:   "agent",
		SenderName: "Agent",
		Text:       text,
		Type:       types.MessageTypeAgent,
		Timestamp:  time.Unix(int64(at), 0),
	}
}
