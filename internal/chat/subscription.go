package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/wschat/internal/types"
)

// Subscription is a live query handle. Close releases it; calling Close more
// than once, or on a nil Subscription, is a no-op.
type Subscription struct {
	query  types.Query
	once   sync.Once
	cancel func()
}

// Subscribe opens a live query on src. Callbacks run on the source's delivery
// goroutine until Close returns.
func Subscribe(ctx context.Context, src types.LiveQuerySource, q types.Query, onSnapshot func([]*types.Message), onError func(error)) (*Subscription, error) {
	if q.Workspace == "" {
		return nil, types.ErrNoWorkspace
	}
	cancel, err := src.Subscribe(ctx, q, onSnapshot, onError)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSubscribe, err)
	}
	return &Subscription{query: q, cancel: cancel}, nil
}

func (s *Subscription) Workspace() types.WorkspaceID {
	if s == nil {
		return ""
	}
	return s.query.Workspace
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
