package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/store/local"
	"github.com/user/wschat/internal/types"
)

type recordingNotifier struct {
	mu    sync.Mutex
	ended []types.WorkspaceID
}

func (n *recordingNotifier) EndSession(_ context.Context, ws types.WorkspaceID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, ws)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ended)
}

type failingSink struct{}

func (failingSink) Append(context.Context, types.WorkspaceID, *types.Message) (types.MessageID, error) {
	return "", errors.New("disk full")
}

type fixture struct {
	model    *Model
	store    *local.Store
	notifier *recordingNotifier
	copied   []string
}

func newFixture(t *testing.T, sink types.AppendSink) *fixture {
	t.Helper()
	store, err := local.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	who := types.Identity{ID: "u1", DisplayName: "Ada"}
	if err := store.CreateProfile(ctx, &types.UserProfile{ID: who.ID, DisplayName: who.DisplayName}); err != nil {
		t.Fatal(err)
	}
	ws, err := store.CreateWorkspace(ctx, who.ID, "Launch")
	if err != nil {
		t.Fatal(err)
	}
	if sink == nil {
		sink = store
	}

	f := &fixture{store: store, notifier: &recordingNotifier{}}
	f.model = NewModel(Options{
		Chat: chat.Config{
			Source:   store,
			Sink:     sink,
			Identity: who,
			Detector: chat.DefaultAgentDetector(),
		},
		Workspace: ws,
		Directory: store,
		Notifier:  f.notifier,
		Clipboard: func(s string) error {
			f.copied = append(f.copied, s)
			return nil
		},
	})
	if err := f.model.Attach(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		f.model.leave()
		f.model.ctrl.Close()
		f.model.ctrl.Wait()
	})
	f.model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return f
}

func (f *fixture) typeText(s string) {
	f.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

// settle waits until cond holds for the controller state, then feeds that
// state to the model the way the program would.
func (f *fixture) settle(t *testing.T, cond func(chat.State) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := f.model.ctrl.State()
		if cond(st) {
			f.model.Update(stateMsg(st))
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state never settled: %+v", f.model.ctrl.State())
}

func TestTypingUpdatesDraft(t *testing.T) {
	f := newFixture(t, nil)
	f.typeText("hello")
	if got := f.model.ctrl.Draft(); got != "hello" {
		t.Errorf("expected draft %q, got %q", "hello", got)
	}
}

func TestSubmitClearsInputAndShowsMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.typeText("hello team")

	_, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a send command")
	}
	if f.model.input.Value() != "" {
		t.Errorf("expected input cleared before the write, got %q", f.model.input.Value())
	}
	f.model.Update(cmd())

	f.settle(t, func(st chat.State) bool { return len(st.Messages) == 1 })
	if !strings.Contains(f.model.View(), "hello team") {
		t.Errorf("expected message in view:\n%s", f.model.View())
	}
	if f.model.state.WaitingForAgent {
		t.Error("plain message should not wait for the agent")
	}
}

func TestSendHintDisabledUntilDraft(t *testing.T) {
	f := newFixture(t, nil)
	if !f.model.sendHintStyle().GetStrikethrough() {
		t.Error("expected disabled send hint with an empty draft")
	}
	f.typeText("   ")
	if !f.model.sendHintStyle().GetStrikethrough() {
		t.Error("expected disabled send hint with a blank draft")
	}
	f.typeText("hi")
	if f.model.sendHintStyle().GetStrikethrough() {
		t.Error("expected enabled send hint once there is text")
	}

	f.model.leave()
	if !f.model.sendHintStyle().GetStrikethrough() {
		t.Error("expected disabled send hint after leaving")
	}
}

func TestSubmitEmptyDoesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.typeText("   ")
	if _, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("expected no command for blank input")
	}
}

func TestCommandShowsWaitingUntilAgentReplies(t *testing.T) {
	f := newFixture(t, nil)
	f.typeText(`\ask what's next?`)
	_, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	f.model.Update(cmd())

	f.settle(t, func(st chat.State) bool { return st.WaitingForAgent && len(st.Messages) == 1 })
	if !strings.Contains(f.model.View(), "waiting for agent") {
		t.Errorf("expected waiting indicator:\n%s", f.model.View())
	}

	ws := f.model.workspace
	_, err := f.store.Append(context.Background(), ws, &types.Message{
		SenderID: "agent", SenderName: "Agent", Text: "ship it", Type: types.MessageTypeAgent,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.settle(t, func(st chat.State) bool { return !st.WaitingForAgent && len(st.Messages) == 2 })
	view := f.model.View()
	if strings.Contains(view, "waiting for agent") {
		t.Errorf("expected waiting indicator gone:\n%s", view)
	}
	if !strings.Contains(view, "ship it") {
		t.Errorf("expected agent reply in view:\n%s", view)
	}
}

func TestWriteFailureRestoresInput(t *testing.T) {
	f := newFixture(t, failingSink{})
	f.typeText(`\run deploy`)
	_, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	f.model.Update(cmd())

	if got := f.model.input.Value(); got != `\run deploy` {
		t.Errorf("expected input restored, got %q", got)
	}
	if !strings.Contains(f.model.View(), "Message not sent") {
		t.Errorf("expected failure notice:\n%s", f.model.View())
	}
	if f.model.ctrl.State().WaitingForAgent {
		t.Error("failed write must not wait for the agent")
	}
}

func TestCopyInvite(t *testing.T) {
	f := newFixture(t, nil)
	_, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	if cmd == nil {
		t.Fatal("expected a tick to clear the copied flag")
	}
	if len(f.copied) != 1 || f.copied[0] != string(f.model.workspace) {
		t.Fatalf("expected invite code copied, got %v", f.copied)
	}
	if !strings.Contains(f.model.View(), "copied!") {
		t.Errorf("expected copied flag:\n%s", f.model.View())
	}
}

func TestMembershipHeader(t *testing.T) {
	f := newFixture(t, nil)
	msg := f.model.resolveMembership()()
	f.model.Update(msg)
	view := f.model.View()
	if !strings.Contains(view, "Ada (host)") {
		t.Errorf("expected host label:\n%s", view)
	}
}

func TestQuitDetachesAndEndsSessionOnce(t *testing.T) {
	f := newFixture(t, nil)
	if !f.model.ctrl.Subscribed() {
		t.Fatal("expected subscription after attach")
	}

	_, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	f.model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	if f.model.ctrl.Subscribed() {
		t.Error("expected subscription released on quit")
	}
	f.model.ctrl.Wait()
	if got := f.notifier.count(); got != 1 {
		t.Errorf("expected one end-session call, got %d", got)
	}
	if f.model.View() != "" {
		t.Error("expected empty view after quit")
	}
	if msg := f.model.waitForChange()(); msg != nil {
		t.Errorf("expected nil after quit, got %T", msg)
	}
}
