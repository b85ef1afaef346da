// Package tui is the terminal chat view. It mounts a chat.Controller for one
// workspace and renders its state with Bubble Tea.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/types"
)

const defaultEndSessionTimeout = 5 * time.Second

// Options configure the chat view.
type Options struct {
	// Chat wires the controller. OnChange is owned by the view and ignored.
	Chat      chat.Config
	Workspace types.WorkspaceID
	Directory types.Directory
	Notifier  types.SessionNotifier
	// Clipboard receives the invite code on ctrl+y. Defaults to the system
	// clipboard.
	Clipboard         func(string) error
	EndSessionTimeout time.Duration
	Logger            *slog.Logger
}

type stateMsg chat.State

type membershipMsg chat.Membership

type sendResultMsg struct {
	send *chat.Send
	err  error
}

type copiedExpiredMsg struct{}

// Model implements the chat view.
type Model struct {
	ctrl      *chat.Controller
	workspace types.WorkspaceID
	directory types.Directory
	notifier  types.SessionNotifier
	clipboard func(string) error
	timeout   time.Duration
	logger    *slog.Logger
	invite    *chat.InviteCode

	changes   chan struct{}
	done      chan struct{}
	leaveOnce sync.Once

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	state      chat.State
	membership chat.Membership
	notice     string
	width      int
	height     int
	ready      bool
	quitting   bool
}

// NewModel builds the view and its controller. The controller is not
// attached until Attach (or Run) is called.
func NewModel(opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Model{
		workspace: opts.Workspace,
		directory: opts.Directory,
		notifier:  opts.Notifier,
		clipboard: opts.Clipboard,
		timeout:   opts.EndSessionTimeout,
		logger:    logger,
		invite:    chat.NewInviteCode(opts.Workspace),
		changes:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if m.clipboard == nil {
		m.clipboard = clipboard.WriteAll
	}
	if m.timeout <= 0 {
		m.timeout = defaultEndSessionTimeout
	}

	cfg := opts.Chat
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	cfg.OnChange = m.changed
	m.ctrl = chat.NewController(cfg)

	input := textinput.New()
	input.Placeholder = `Message, or \act \ask \run for the agent`
	input.Prompt = "› "
	input.CharLimit = 0
	input.Focus()
	m.input = input

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	m.spinner = sp

	m.viewport = viewport.New(0, 0)
	m.membership = chat.Membership{DisplayName: chat.PlaceholderName}
	m.state = m.ctrl.State()
	return m
}

func (m *Model) Controller() *chat.Controller {
	return m.ctrl
}

// Attach subscribes the controller to the view's workspace.
func (m *Model) Attach(ctx context.Context) error {
	return m.ctrl.Attach(ctx, m.workspace)
}

// changed runs on the controller's goroutines and must not block.
func (m *Model) changed(chat.State) {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// waitForChange delivers the latest controller state once something changed.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.done:
			return nil
		default:
		}
		select {
		case <-m.changes:
			return stateMsg(m.ctrl.State())
		case <-m.done:
			return nil
		}
	}
}

func (m *Model) resolveMembership() tea.Cmd {
	who := m.ctrl.Identity()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		return membershipMsg(chat.ResolveMembership(ctx, m.directory, m.workspace, who, m.logger))
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange(), m.resolveMembership())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.leave()
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyCtrlY:
			return m, m.copyInvite()
		}

	case stateMsg:
		m.state = chat.State(msg)
		m.refresh()
		return m, m.waitForChange()

	case membershipMsg:
		m.membership = chat.Membership(msg)
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.notice = "Message not sent: " + msg.err.Error()
			if msg.send != nil && msg.send.Restored {
				m.input.SetValue(m.ctrl.Draft())
				m.input.CursorEnd()
			}
		} else {
			m.notice = ""
		}
		return m, nil

	case copiedExpiredMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if v := m.input.Value(); v != before {
		m.ctrl.SetDraft(v)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit clears the input immediately and writes the message in the
// background.
func (m *Model) submit() tea.Cmd {
	s, ok := m.ctrl.Prepare()
	if !ok {
		return nil
	}
	m.input.Reset()
	m.notice = ""
	return func() tea.Msg {
		err := s.Commit(context.Background())
		return sendResultMsg{send: s, err: err}
	}
}

func (m *Model) copyInvite() tea.Cmd {
	if err := m.invite.Copy(m.clipboard); err != nil {
		if errors.Is(err, types.ErrNoWorkspace) {
			m.notice = "No workspace to invite to"
		} else {
			m.notice = "Copy failed: " + err.Error()
			m.logger.Warn("copy invite code failed", "workspace_id", m.workspace, "error", err)
		}
		return nil
	}
	m.notice = ""
	return tea.Tick(chat.CopiedFlagDuration, func(time.Time) tea.Msg {
		return copiedExpiredMsg{}
	})
}

// leave detaches the controller and notifies the backend once, whichever
// exit path gets here first.
func (m *Model) leave() {
	m.leaveOnce.Do(func() {
		m.quitting = true
		m.ctrl.Leave(m.notifier, m.timeout)
		close(m.done)
	})
}

// Run attaches the controller, runs the program until the user quits, and
// waits for background work to settle.
func Run(ctx context.Context, opts Options) error {
	m := NewModel(opts)
	if err := m.Attach(ctx); err != nil {
		m.leave()
		m.ctrl.Wait()
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.leave()
	m.ctrl.Close()
	m.ctrl.Wait()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
