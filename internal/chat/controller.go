package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/wschat/internal/types"
)

// ErrClosed is returned by Attach after Close.
var ErrClosed = errors.New("controller closed")

// Phase is the send pipeline's visible state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
)

func (p Phase) String() string {
	if p == PhaseSubmitting {
		return "submitting"
	}
	return "idle"
}

// Outcome is the terminal state of one send.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSent
	OutcomeFailed
)

// State is a copy of the controller's session state. Messages are shared
// with the controller and must not be modified.
type State struct {
	Workspace          types.WorkspaceID
	Messages           []*types.Message
	Draft              string
	PendingCommandID   types.MessageID
	WaitingForAgent    bool
	LastSeenAgentCount int
	// Synced is set once the first snapshot for the workspace has arrived.
	Synced    bool
	Phase     Phase
	LastError error
}

// Config wires a Controller to its collaborators.
type Config struct {
	Source   types.LiveQuerySource
	Sink     types.AppendSink
	Relay    types.Relay // optional
	Identity types.Identity
	Detector AgentDetector
	Logger   *slog.Logger
	// OnChange is called after every state change, outside the controller's
	// lock and possibly from a background goroutine.
	OnChange func(State)
}

// Controller keeps one workspace's chat view consistent with the store's
// live snapshots and runs the send pipeline.
type Controller struct {
	source   types.LiveQuerySource
	sink     types.AppendSink
	relay    types.Relay
	identity types.Identity
	detector AgentDetector
	logger   *slog.Logger
	onChange func(State)

	attachMu sync.Mutex
	sub      *Subscription

	mu             sync.Mutex
	gen            uint64
	closed         bool
	workspace      types.WorkspaceID
	messages       []*types.Message
	draft          string
	pending        types.MessageID
	waiting        bool
	lastSeenAgents int
	synced         bool
	inflight       int
	lastErr        error

	tasks sync.WaitGroup
}

func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source:   cfg.Source,
		sink:     cfg.Sink,
		relay:    cfg.Relay,
		identity: cfg.Identity,
		detector: cfg.Detector,
		logger:   logger,
		onChange: cfg.OnChange,
	}
}

func (c *Controller) Identity() types.Identity {
	return c.identity
}

func (c *Controller) Detector() AgentDetector {
	return c.detector
}

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	phase := PhaseIdle
	if c.inflight > 0 {
		phase = PhaseSubmitting
	}
	msgs := make([]*types.Message, len(c.messages))
	copy(msgs, c.messages)
	return State{
		Workspace:          c.workspace,
		Messages:           msgs,
		Draft:              c.draft,
		PendingCommandID:   c.pending,
		WaitingForAgent:    c.waiting,
		LastSeenAgentCount: c.lastSeenAgents,
		Synced:             c.synced,
		Phase:              phase,
		LastError:          c.lastErr,
	}
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}

// Attach tears down any current subscription and then subscribes to the
// given workspace, recreating all session state. An empty workspace id
// leaves the view empty with no subscription.
func (c *Controller) Attach(ctx context.Context, workspace types.WorkspaceID) error {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	c.detachLocked()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.workspace = workspace
	c.messages = nil
	c.draft = ""
	c.pending = ""
	c.waiting = false
	c.lastSeenAgents = 0
	c.synced = false
	c.inflight = 0
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()

	if workspace == "" {
		return nil
	}

	sub, err := Subscribe(ctx, c.source, types.MessagesByTimestamp(workspace),
		func(msgs []*types.Message) { c.applySnapshot(gen, msgs) },
		func(err error) { c.subscriptionFailed(gen, err) },
	)
	if err != nil {
		c.subscriptionFailed(gen, err)
		return fmt.Errorf("attach workspace %s: %w", workspace, err)
	}
	c.sub = sub
	c.logger.Debug("subscribed", "workspace_id", workspace)
	return nil
}

// Detach releases the live subscription and discards the session state, so
// nothing can be submitted until the next Attach. It is safe to call any
// number of times. Callbacks from the released subscription and completions
// of earlier sends no longer change state once it returns.
func (c *Controller) Detach() {
	c.attachMu.Lock()
	c.detachLocked()
	c.attachMu.Unlock()
	c.notify()
}

// detachLocked must be called with attachMu held.
func (c *Controller) detachLocked() {
	c.mu.Lock()
	c.gen++
	c.workspace = ""
	c.messages = nil
	c.draft = ""
	c.pending = ""
	c.waiting = false
	c.lastSeenAgents = 0
	c.synced = false
	c.inflight = 0
	c.mu.Unlock()

	if c.sub != nil {
		c.logger.Debug("unsubscribed", "workspace_id", c.sub.Workspace())
		c.sub.Close()
		c.sub = nil
	}
}

// Subscribed reports whether a live subscription is currently held.
func (c *Controller) Subscribed() bool {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	return c.sub != nil
}

// Close detaches and refuses further attaches. Dispatched relay calls keep
// running; use Wait to let them finish.
func (c *Controller) Close() {
	c.Detach()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Wait blocks until every background task started by this controller has
// finished.
func (c *Controller) Wait() {
	c.tasks.Wait()
}

// Leave detaches and then, in the background, tells the operational
// backend the session ended. The notification never delays the caller.
func (c *Controller) Leave(notifier types.SessionNotifier, timeout time.Duration) {
	c.mu.Lock()
	workspace := c.workspace
	c.mu.Unlock()

	c.Detach()

	if notifier == nil || workspace == "" {
		return
	}
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := notifier.EndSession(ctx, workspace); err != nil {
			c.logger.Warn("end session failed", "workspace_id", workspace, "error", err)
			return
		}
		c.logger.Info("session ended", "workspace_id", workspace)
	}()
}

func (c *Controller) applySnapshot(gen uint64, msgs []*types.Message) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.messages = msgs
	c.synced = true
	count := c.detector.Count(msgs)
	switch {
	case count > c.lastSeenAgents:
		c.waiting = false
		c.pending = ""
		c.lastSeenAgents = count
	case count < c.lastSeenAgents:
		c.logger.Warn("agent message count decreased",
			"workspace_id", c.workspace, "seen", c.lastSeenAgents, "count", count)
	}
	if errors.Is(c.lastErr, types.ErrSubscribe) {
		c.lastErr = nil
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) subscriptionFailed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	workspace := c.workspace
	c.waiting = false
	c.pending = ""
	if !errors.Is(err, types.ErrSubscribe) {
		err = fmt.Errorf("%w: %w", types.ErrSubscribe, err)
	}
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Error("message subscription failed", "workspace_id", workspace, "error", err)
	c.notify()
}

// SetDraft replaces the input buffer.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// CanSubmit reports whether Submit would do anything.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.workspace != "" && strings.TrimSpace(c.draft) != ""
}

// Send is one message on its way through the pipeline.
type Send struct {
	c         *Controller
	gen       uint64
	workspace types.WorkspaceID
	original  string

	Text    string
	Command Command
	ID      types.MessageID
	Outcome Outcome
	// Restored is set when a failed write put the text back into the draft.
	Restored bool
}

// Prepare runs the synchronous half of a send: it validates the draft,
// classifies it, and clears the input. ok is false when there is nothing to
// send.
func (c *Controller) Prepare() (s *Send, ok bool) {
	c.mu.Lock()
	text := strings.TrimSpace(c.draft)
	if c.closed || text == "" || c.workspace == "" {
		c.mu.Unlock()
		return nil, false
	}
	s = &Send{
		c:         c,
		gen:       c.gen,
		workspace: c.workspace,
		original:  c.draft,
		Text:      text,
		Command:   Classify(text),
	}
	c.draft = ""
	c.inflight++
	c.mu.Unlock()
	c.notify()
	return s, true
}

// Submit prepares and commits the current draft. It returns (nil, nil) when
// there is nothing to send.
func (c *Controller) Submit(ctx context.Context) (*Send, error) {
	s, ok := c.Prepare()
	if !ok {
		return nil, nil
	}
	return s, s.Commit(ctx)
}

// Commit appends the message to the store, records a pending command, and
// dispatches the relay call without waiting for it.
func (s *Send) Commit(ctx context.Context) error {
	c := s.c
	who := c.identity
	id, err := c.sink.Append(ctx, s.workspace, &types.Message{
		SenderID:   who.ID,
		SenderName: who.DisplayName,
		Text:       s.Text,
		Type:       types.MessageTypeUser,
	})
	if err != nil {
		if !errors.Is(err, types.ErrWrite) {
			err = fmt.Errorf("%w: %w", types.ErrWrite, err)
		}
		s.Outcome = OutcomeFailed
		c.writeFailed(s, err)
		return fmt.Errorf("send message: %w", err)
	}

	s.ID = id
	s.Outcome = OutcomeSent
	c.written(s)
	c.dispatchRelay(ctx, s)
	return nil
}

func (c *Controller) written(s *Send) {
	c.mu.Lock()
	if s.gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.inflight--
	if s.Command.IsCommand() {
		c.pending = s.ID
		c.waiting = true
	}
	c.mu.Unlock()

	c.logger.Debug("message sent", "workspace_id", s.workspace, "message_id", s.ID, "command", s.Command.String())
	c.notify()
}

func (c *Controller) writeFailed(s *Send, err error) {
	c.logger.Error("message write failed", "workspace_id", s.workspace, "error", err)

	c.mu.Lock()
	if s.gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.inflight--
	if c.draft == "" {
		c.draft = s.original
		s.Restored = true
	}
	c.waiting = false
	c.pending = ""
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) dispatchRelay(ctx context.Context, s *Send) {
	if c.relay == nil {
		return
	}
	req := types.RelayRequest{
		Username:    c.identity.DisplayName,
		WorkspaceID: s.workspace,
		Message:     s.Text,
	}
	// The relay has no cancellation once dispatched.
	relayCtx := context.WithoutCancel(ctx)

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		if err := c.relay.Relay(relayCtx, req); err != nil {
			c.relayFailed(s, err)
		}
	}()
}

// relayFailed clears the waiting state only when this send is the pending
// command. A failed relay for a plain message, or for a command that a later
// command has since replaced, leaves the newer wait in place; that wait still
// ends when the agent replies or its own relay fails.
func (c *Controller) relayFailed(s *Send, err error) {
	c.logger.Error("agent relay failed", "workspace_id", s.workspace, "message_id", s.ID, "error", err)

	c.mu.Lock()
	if s.gen != c.gen {
		c.mu.Unlock()
		return
	}
	changed := false
	if c.pending == s.ID {
		c.pending = ""
		c.waiting = false
		changed = true
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}
