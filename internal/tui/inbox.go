// Package tui is the terminal inbox: the conversation list on the left, the
// selected thread on the right and a message input underneath.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/example/carpool-client/internal/models"
	"github.com/example/carpool-client/internal/views"
)

// Inbox is the part of *views.MessagesView the terminal drives.
type Inbox interface {
	Mount(ctx context.Context, openUserID int64)
	Unmount()
	Select(ctx context.Context, otherUserID int64) error
	Send(ctx context.Context, content string) error
	DismissError()
	Snapshot() views.MessagesSnapshot
}

// Bridge turns view updates into tea messages. Pass it as the view's
// Notifier. Updates are dropped while the program is not keeping up; the
// next one carries the full state anyway.
type Bridge struct {
	ch chan views.Update
}

func NewBridge() *Bridge {
	return &Bridge{ch: make(chan views.Update, 64)}
}

func (b *Bridge) Notify(u views.Update) {
	select {
	case b.ch <- u:
	default:
	}
}

func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-b.ch)
	}
}

type (
	updateMsg views.Update
	sentMsg   struct{ err error }
	openedMsg struct{ err error }
)

type Model struct {
	ctx    context.Context
	inbox  Inbox
	bridge *Bridge
	selfID int64

	snap   views.MessagesSnapshot
	notice string
	status string
	cursor int

	input    textinput.Model
	thread   viewport.Model
	width    int
	height   int
	sidebarW int
}

// New builds the model. selfID colors the caller's own messages.
func New(ctx context.Context, inbox Inbox, bridge *Bridge, selfID int64) Model {
	in := textinput.New()
	in.Placeholder = "Type a message..."
	in.CharLimit = 1000
	in.Focus()

	return Model{
		ctx:      ctx,
		inbox:    inbox,
		bridge:   bridge,
		selfID:   selfID,
		snap:     inbox.Snapshot(),
		input:    in,
		thread:   viewport.New(60, 15),
		sidebarW: 28,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.bridge.wait())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case tea.KeyDown:
			if m.cursor < len(m.snap.Conversations.Value)-1 {
				m.cursor++
			}
			return m, nil
		case tea.KeyCtrlD:
			m.status = ""
			m.inbox.DismissError()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.thread, cmd = m.thread.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.sidebarW = max(m.width/4, 24)
		chatW := m.width - m.sidebarW - 4
		m.thread.Width = max(chatW-2, 10)
		m.thread.Height = max(m.height-7, 3)
		m.input.Width = max(chatW-4, 10)
		m.renderThread()
		return m, nil

	case updateMsg:
		switch msg.Kind {
		case views.UpdateNotice:
			m.notice, _ = msg.Payload.(string)
		default:
			m.snap = m.inbox.Snapshot()
			m.clampCursor()
			m.renderThread()
		}
		return m, m.bridge.wait()

	case openedMsg:
		m.status = errText(msg.err)
		return m, nil

	case sentMsg:
		m.status = errText(msg.err)
		if msg.err == nil {
			m.input.Reset()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the typed message, or opens the highlighted conversation
// when the input is empty.
func (m Model) submit() (tea.Model, tea.Cmd) {
	content := m.input.Value()
	if strings.TrimSpace(content) == "" {
		convs := m.snap.Conversations.Value
		if len(convs) == 0 {
			return m, nil
		}
		id := convs[m.cursor].OtherUser.ID
		ctx, inbox := m.ctx, m.inbox
		return m, func() tea.Msg {
			return openedMsg{err: inbox.Select(ctx, id)}
		}
	}
	ctx, inbox := m.ctx, m.inbox
	return m, func() tea.Msg {
		return sentMsg{err: inbox.Send(ctx, content)}
	}
}

func (m *Model) clampCursor() {
	n := len(m.snap.Conversations.Value)
	if m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) renderThread() {
	var b strings.Builder
	for _, msg := range m.snap.Thread.Value.Messages {
		style, who := otherMessageStyle, m.peerName()
		if msg.SenderID == m.selfID {
			style, who = ownMessageStyle, "you"
		}
		fmt.Fprintf(&b, "%s %s: %s\n",
			mutedStyle.Render(msg.CreatedAt.Time.Format("15:04")),
			style.Render(who),
			msg.Content,
		)
	}
	m.thread.SetContent(b.String())
	m.thread.GotoBottom()
}

func (m Model) peerName() string {
	for _, c := range m.snap.Conversations.Value {
		if c.OtherUser.ID == m.snap.Selected {
			return displayName(c.OtherUser)
		}
	}
	return "them"
}

func displayName(u models.UserProfile) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (m Model) View() string {
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.chatView())
}

func (m Model) sidebarView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Messages"))
	s.WriteString("\n\n")

	convs := m.snap.Conversations
	switch {
	case convs.Loading && len(convs.Value) == 0:
		s.WriteString(mutedStyle.Render("Loading..."))
	case len(convs.Value) == 0:
		s.WriteString(mutedStyle.Render("No conversations yet."))
	}
	for i, c := range convs.Value {
		line := displayName(c.OtherUser)
		if c.UnreadCount > 0 {
			line += errorStyle.Render(fmt.Sprintf(" (%d)", c.UnreadCount))
		}
		if i == m.cursor {
			s.WriteString(selectedItemStyle.Render(line) + "\n")
		} else {
			s.WriteString(unselectedItemStyle.Render(line) + "\n")
		}
	}
	if convs.Error != "" {
		s.WriteString("\n" + errorStyle.Render(convs.Error))
	}
	return sidebarStyle.Width(m.sidebarW - 2).Render(s.String())
}

func (m Model) chatView() string {
	var s strings.Builder
	if m.snap.Selected == 0 {
		s.WriteString(titleStyle.Render("Select a conversation"))
	} else {
		s.WriteString(titleStyle.Render(m.peerName()))
	}
	s.WriteString("\n")

	switch {
	case m.snap.Thread.Loading:
		s.WriteString(mutedStyle.Render("Loading..."))
	default:
		s.WriteString(m.thread.View())
	}
	s.WriteString("\n")

	if msg := firstNonEmpty(m.status, m.snap.Thread.Error); msg != "" {
		s.WriteString(errorStyle.Render(msg) + "\n")
	} else if m.notice != "" {
		s.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	if m.snap.Sending {
		s.WriteString(mutedStyle.Render("Sending...") + "\n")
	}
	s.WriteString(m.input.View())
	s.WriteString("\n" + mutedStyle.Render("↑/↓ choose • enter open/send • ctrl+d dismiss • esc quit"))
	return chatWindowStyle.Render(s.String())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Run mounts the inbox, runs the program until the user quits and unmounts
// on the way out.
func Run(ctx context.Context, inbox Inbox, bridge *Bridge, selfID, openUserID int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbox.Mount(ctx, openUserID)
	defer inbox.Unmount()

	p := tea.NewProgram(New(ctx, inbox, bridge, selfID), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("inbox: %w", err)
	}
	return nil
}
