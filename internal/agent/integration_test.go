package agent_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/wschat/internal/agent"
	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/relay"
	"github.com/user/wschat/internal/store/local"
	"github.com/user/wschat/internal/types"
)

// TestEndToEnd drives a chat controller against the dev relay over HTTP,
// with both sharing one local store.
func TestEndToEnd(t *testing.T) {
	store, err := local.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	a := agent.New(agent.Config{Store: store, Name: "Agent", SenderID: "agent", MaxConcurrent: 2})
	a.Start(context.Background())
	defer a.Stop()

	srv := httptest.NewServer(agent.NewServer(a, nil))
	defer srv.Close()
	client := relay.New(srv.URL+"/relay", srv.URL, 5*time.Second)

	ctx := context.Background()
	if err := store.CreateProfile(ctx, &types.UserProfile{ID: "u1", DisplayName: "Ada"}); err != nil {
		t.Fatal(err)
	}
	ws, err := store.CreateWorkspace(ctx, "u1", "Launch")
	if err != nil {
		t.Fatal(err)
	}

	changes := make(chan struct{}, 1)
	ctrl := chat.NewController(chat.Config{
		Source:   store,
		Sink:     store,
		Relay:    client,
		Identity: types.Identity{ID: "u1", DisplayName: "Ada"},
		Detector: chat.DefaultAgentDetector(),
		OnChange: func(chat.State) {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	})
	defer func() {
		ctrl.Close()
		ctrl.Wait()
	}()

	if err := ctrl.Attach(ctx, ws); err != nil {
		t.Fatal(err)
	}
	waitFor(t, ctrl, changes, func(st chat.State) bool { return st.Synced })

	ctrl.SetDraft(`\run smoke tests`)
	s, err := ctrl.Submit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Command != chat.CommandRun {
		t.Errorf("expected run command, got %v", s.Command)
	}
	if !ctrl.State().WaitingForAgent {
		t.Error("expected waiting right after the write")
	}

	st := waitFor(t, ctrl, changes, func(st chat.State) bool {
		return !st.WaitingForAgent && len(st.Messages) == 2
	})
	if st.LastSeenAgentCount != 1 {
		t.Errorf("expected 1 agent message, got %d", st.LastSeenAgentCount)
	}
	reply := st.Messages[1]
	if reply.Type != types.MessageTypeAgent || reply.SenderID != "agent" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if !strings.Contains(reply.Text, `\run`) || !strings.Contains(reply.Text, "Ada") {
		t.Errorf("unexpected reply text %q", reply.Text)
	}

	ctrl.Leave(client, time.Second)
	ctrl.Wait()
	if ctrl.Subscribed() {
		t.Error("expected no subscription after leave")
	}
}

func waitFor(t *testing.T, ctrl *chat.Controller, changes <-chan struct{}, cond func(chat.State) bool) chat.State {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		st := ctrl.State()
		if cond(st) {
			return st
		}
		select {
		case <-changes:
		case <-time.After(50 * time.Millisecond):
		case <-timeout:
			t.Fatalf("condition not met, state %+v", st)
		}
	}
}
