package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/types"
)

var (
	accent      = lipgloss.Color("63")
	agentColor  = lipgloss.Color("42")
	selfColor   = lipgloss.Color("214")
	mutedColor  = lipgloss.Color("241")
	errorColor  = lipgloss.Color("203")
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	hintStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true)
	// Shown when the draft is blank or no workspace is attached.
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Strikethrough(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor)
	copiedStyle   = lipgloss.NewStyle().Foreground(agentColor).Bold(true)
	senderStyle   = lipgloss.NewStyle().Bold(true)
	agentStyle    = senderStyle.Foreground(agentColor)
	selfStyle     = senderStyle.Foreground(selfColor)
	inputStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true, false, false, false).
			BorderForeground(mutedColor)
	spinnerStyle = lipgloss.NewStyle().Foreground(agentColor)
)

// Header, status line, and input box.
const chromeHeight = 5

func (m *Model) layout() {
	h := m.height - chromeHeight
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - lipgloss.Width(m.input.Prompt) - 1
}

// refresh re-renders the transcript and follows the tail when the user was
// already at the bottom.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessages() string {
	if !m.state.Synced && m.state.LastError == nil {
		return mutedStyle.Render("Loading messages…")
	}
	if len(m.state.Messages) == 0 {
		return mutedStyle.Render("No messages yet. Say hello, or ask the agent with \\ask.")
	}
	self := m.ctrl.Identity().ID
	detector := m.ctrl.Detector()
	width := m.width
	if width <= 0 {
		width = 80
	}
	body := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, msg := range m.state.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		style := senderStyle
		switch {
		case detector.IsAgent(msg):
			style = agentStyle
		case msg.SenderID == self:
			style = selfStyle
		}
		name := msg.SenderName
		if name == "" {
			name = types.UnknownUser
		}
		line := fmt.Sprintf("%s %s %s",
			mutedStyle.Render(msg.Timestamp.Local().Format("15:04")),
			style.Render(name+":"),
			msg.Text)
		b.WriteString(body.Render(line))
	}
	return b.String()
}

func (m *Model) renderHeader() string {
	title := headerStyle.Render("wschat")
	if m.workspace != "" {
		title += mutedStyle.Render(" · invite ") + m.invite.String()
	}
	if m.invite.Copied() {
		title += " " + copiedStyle.Render("copied!")
	}
	who := m.membership.DisplayName
	if m.membership.IsHost() {
		who += " (host)"
	}
	return title + "\n" + mutedStyle.Render("signed in as "+who)
}

func (m *Model) renderStatus() string {
	switch {
	case m.notice != "":
		return errorStyle.Render(m.notice)
	case m.state.LastError != nil:
		return errorStyle.Render("Live updates stopped: " + m.state.LastError.Error())
	case m.state.WaitingForAgent:
		return m.spinner.View() + mutedStyle.Render(" waiting for agent…")
	case m.state.Phase == chat.PhaseSubmitting:
		return mutedStyle.Render("sending…")
	}
	return m.sendHintStyle().Render("enter send") + mutedStyle.Render(" · ctrl+y copy invite · esc quit")
}

// sendHintStyle greys out the send hint while submitting would do nothing.
func (m *Model) sendHintStyle() lipgloss.Style {
	if !m.ctrl.CanSubmit() {
		return disabledStyle
	}
	return hintStyle
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading…"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderStatus(),
		inputStyle.Width(m.width).Render(m.input.View()),
	)
}
