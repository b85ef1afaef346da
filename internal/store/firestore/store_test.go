package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/user/wschat/internal/types"
)

func TestToMessage_DefaultsType(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := toMessage("m1", messageDoc{SenderID: "u1", SenderName: "Ada", Text: "hi", Timestamp: ts})
	if m.ID != "m1" || m.SenderID != "u1" || m.Text != "hi" || !m.Timestamp.Equal(ts) {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Type != types.MessageTypeUser {
		t.Errorf("expected missing type to read as user, got %q", m.Type)
	}

	agent := toMessage("m2", messageDoc{Type: types.MessageTypeAgent})
	if agent.Type != types.MessageTypeAgent {
		t.Errorf("expected agent type kept, got %q", agent.Type)
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []*types.Workspace{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "mid", CreatedAt: base.Add(time.Hour)},
	}
	sortNewestFirst(list)
	got := []types.WorkspaceID{list[0].ID, list[1].ID, list[2].ID}
	want := []types.WorkspaceID{"new", "mid", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNewStore_RequiresProject(t *testing.T) {
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatal("expected error without project id")
	}
}

// emulatorStore connects to a local Firestore emulator, skipping otherwise.
func emulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	s, err := NewStore(context.Background(), "wschat-test", nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEmulator_WorkspaceLifecycle(t *testing.T) {
	s := emulatorStore(t)
	ctx := context.Background()

	host := types.UserID("host-" + uuid.NewString())
	guest := types.UserID("guest-" + uuid.NewString())
	if err := s.CreateProfile(ctx, &types.UserProfile{ID: host, DisplayName: "Hana"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateProfile(ctx, &types.UserProfile{ID: guest, Email: "guest@example.com"}); err != nil {
		t.Fatal(err)
	}

	id, err := s.CreateWorkspace(ctx, host, "Design")
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := s.JoinWorkspace(ctx, guest, id)
		if err != nil || !ok {
			t.Fatalf("join %d: %v, %v", i, ok, err)
		}
	}
	ok, err := s.JoinWorkspace(ctx, guest, types.WorkspaceID("missing-"+uuid.NewString()))
	if err != nil || ok {
		t.Fatalf("expected false for missing workspace, got %v, %v", ok, err)
	}

	ws, err := s.GetWorkspace(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if ws.ParticipantCount != 2 || ws.HostName != "Hana" {
		t.Errorf("unexpected workspace %+v", ws)
	}

	p, err := s.GetParticipant(ctx, id, guest)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != types.RoleMember || p.DisplayName != "guest@example.com" {
		t.Errorf("unexpected participant %+v", p)
	}

	list, err := s.ListWorkspaces(ctx, guest)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("expected only %s, got %v", id, list)
	}

	if _, err := s.GetParticipant(ctx, id, "nobody"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEmulator_SubscribeSeesAppends(t *testing.T) {
	s := emulatorStore(t)
	ctx := context.Background()
	ws := types.WorkspaceID("ws-" + uuid.NewString())

	snaps := make(chan []*types.Message, 16)
	cancel, err := s.Subscribe(ctx, types.MessagesByTimestamp(ws),
		func(msgs []*types.Message) { snaps <- msgs },
		func(err error) { t.Errorf("subscription error: %v", err) },
	)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	for i := 0; i < 2; i++ {
		if _, err := s.Append(ctx, ws, &types.Message{SenderID: "u", Text: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case msgs := <-snaps:
			if len(msgs) == 2 {
				if msgs[0].Text != "m0" || msgs[1].Text != "m1" {
					t.Errorf("unexpected order %q, %q", msgs[0].Text, msgs[1].Text)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}
