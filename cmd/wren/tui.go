package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	wren "github.com/wren-im/wren-go"
)

// ============================================================================
// Messages from the session
// ============================================================================

type uiMessage struct{ msg wren.Message }

type uiHistory struct {
	conv wren.ConvKey
	msgs []wren.Message
}

type uiRoster struct{ users []wren.User }

type uiRooms struct{ rooms []wren.Room }

type uiUnread struct{ counts map[wren.ConvKey]int }

type uiNotify struct{ from, text string }

type uiErr struct{ err error }

// ============================================================================
// Styles
// ============================================================================

var (
	sidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			PaddingRight(1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	onlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	badgeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	senderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	quoteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("236"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const sidebarWidth = 26

// ============================================================================
// Model
// ============================================================================

type sidebarEntry struct {
	conv   wren.ConvKey
	label  string
	online bool
}

type chatModel struct {
	sess *wren.Session
	self wren.Credentials

	users  []wren.User
	rooms  []wren.Room
	unread map[wren.ConvKey]int

	entries    []sidebarEntry
	cursor     int
	focusInput bool

	active    wren.ConvKey
	hasActive bool
	msgs      []wren.Message
	replyTo   *wren.Message

	toast  string
	status string

	input  textinput.Model
	vp     viewport.Model
	width  int
	height int
	ready  bool
}

func newChatModel(sess *wren.Session, self wren.Credentials) chatModel {
	ti := textinput.New()
	ti.Placeholder = "pick a conversation (tab to switch panes)"
	ti.CharLimit = 2000
	return chatModel{
		sess:   sess,
		self:   self,
		unread: map[wren.ConvKey]int{},
		input:  ti,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// ============================================================================
// Update
// ============================================================================

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpWidth := m.width - sidebarWidth - 3
		vpHeight := m.height - 4
		if !m.ready {
			m.vp = viewport.New(vpWidth, vpHeight)
			m.ready = true
		} else {
			m.vp.Width = vpWidth
			m.vp.Height = vpHeight
		}
		m.input.Width = vpWidth - 2
		m.renderMessages()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case uiMessage:
		if m.hasActive && msg.msg.Conv == m.active {
			m.msgs = append(m.msgs, msg.msg)
			m.renderMessages()
			m.vp.GotoBottom()
		}
		return m, nil

	case uiHistory:
		if m.hasActive && msg.conv == m.active {
			m.msgs = msg.msgs
			m.renderMessages()
			m.vp.GotoBottom()
		}
		return m, nil

	case uiRoster:
		m.users = msg.users
		m.rebuildEntries()
		return m, nil

	case uiRooms:
		m.rooms = msg.rooms
		m.rebuildEntries()
		return m, nil

	case uiUnread:
		m.unread = msg.counts
		return m, nil

	case uiNotify:
		m.toast = fmt.Sprintf("%s: %s", msg.from, truncate(msg.text, 60))
		return m, nil

	case uiErr:
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusInput {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.vp, cmd = m.vp.Update(msg)
	}
	return m, cmd
}

func (m chatModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.focusInput = !m.focusInput
		if m.focusInput {
			m.input.Focus()
		} else {
			m.input.Blur()
		}
		return m, nil

	case "esc":
		if m.replyTo != nil {
			m.replyTo = nil
			sess := m.sess
			return m, func() tea.Msg {
				sess.ClearReply()
				return nil
			}
		}
		if m.focusInput {
			m.focusInput = false
			m.input.Blur()
		}
		return m, nil

	case "ctrl+r":
		return m.stageReply()
	}

	if m.focusInput {
		switch key.String() {
		case "enter":
			return m.submit()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(key)
		return m, cmd
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter":
		return m.openSelected()
	default:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(key)
		return m, cmd
	}
	return m, nil
}

func (m chatModel) openSelected() (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.entries) {
		return m, nil
	}
	entry := m.entries[m.cursor]
	m.active = entry.conv
	m.hasActive = true
	m.msgs = nil
	m.replyTo = nil
	m.toast = ""
	m.status = ""
	m.focusInput = true
	m.input.Focus()
	m.input.Placeholder = "message " + entry.label
	m.renderMessages()

	sess, conv := m.sess, entry.conv
	return m, func() tea.Msg {
		var err error
		if conv.Kind == wren.ConvRoom {
			err = sess.OpenRoom(conv.ID)
		} else {
			err = sess.OpenDirect(conv.ID)
		}
		return uiErr{err}
	}
}

func (m chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || !m.hasActive {
		return m, nil
	}
	m.input.Reset()
	m.replyTo = nil
	m.status = ""

	sess := m.sess
	return m, func() tea.Msg {
		return uiErr{sess.Send(text)}
	}
}

// stageReply quotes the newest message from someone else in the room.
func (m chatModel) stageReply() (tea.Model, tea.Cmd) {
	if !m.hasActive || m.active.Kind != wren.ConvRoom {
		m.status = "replies only work in rooms"
		return m, nil
	}
	for i := len(m.msgs) - 1; i >= 0; i-- {
		msg := m.msgs[i]
		if msg.SenderID == m.self.UserID || msg.Sender == m.self.Username {
			continue
		}
		m.replyTo = &msg
		sess := m.sess
		return m, func() tea.Msg {
			return uiErr{sess.SetReplyTo(msg)}
		}
	}
	m.status = "nothing to reply to"
	return m, nil
}

// ============================================================================
// View
// ============================================================================

func (m chatModel) View() string {
	if !m.ready {
		return "connecting..."
	}

	sidebar := sidebarStyle.Height(m.height - 2).Render(m.renderSidebar())
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.vp.View(),
		m.renderComposer(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatus())
}

func (m chatModel) renderSidebar() string {
	var b strings.Builder
	for i, entry := range m.entries {
		line := entry.label
		if entry.conv.Kind == wren.ConvRoom {
			line = "# " + line
		} else if entry.online {
			line = onlineStyle.Render("● ") + line
		} else {
			line = offlineStyle.Render("○ ") + line
		}
		if n := m.unread[entry.conv]; n > 0 {
			line += " " + badgeStyle.Render(fmt.Sprintf("(%d)", n))
		}
		if i == m.cursor && !m.focusInput {
			line = selectedStyle.Render("> ") + line
		} else if m.hasActive && entry.conv == m.active {
			line = selectedStyle.Render("* ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(truncate(line, sidebarWidth-1))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m chatModel) renderComposer() string {
	if m.replyTo != nil {
		quote := quoteStyle.Render(fmt.Sprintf("↪ replying to %s: %s",
			m.replyTo.Sender, truncate(m.replyTo.Text, 50)))
		return quote + "\n" + m.input.View()
	}
	return m.input.View()
}

func (m chatModel) renderStatus() string {
	left := fmt.Sprintf(" %s │ unread: %d ", m.self.Username, totalUnread(m.unread))
	right := m.toast
	if m.status != "" {
		right = errStyle.Render(m.status)
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return statusStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m *chatModel) renderMessages() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, msg := range m.msgs {
		if msg.ReplyTo != nil {
			b.WriteString(quoteStyle.Render(fmt.Sprintf("│ %s: %s",
				msg.ReplyTo.Sender, truncate(msg.ReplyTo.Text, 60))))
			b.WriteByte('\n')
		}
		b.WriteString(timeStyle.Render(msg.Time))
		b.WriteByte(' ')
		b.WriteString(senderStyle.Render(msg.Sender))
		b.WriteString(": ")
		b.WriteString(msg.Text)
		b.WriteByte('\n')
	}
	m.vp.SetContent(b.String())
}

// ============================================================================
// Helpers
// ============================================================================

func (m *chatModel) rebuildEntries() {
	entries := make([]sidebarEntry, 0, len(m.users)+len(m.rooms))
	for _, u := range m.users {
		entries = append(entries, sidebarEntry{
			conv:   wren.DirectKey(u.ID),
			label:  u.Name,
			online: u.Online,
		})
	}
	for _, r := range m.rooms {
		entries = append(entries, sidebarEntry{
			conv:  wren.RoomKey(r.ID),
			label: r.Name,
		})
	}
	m.entries = entries
	if m.cursor >= len(entries) {
		m.cursor = len(entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func totalUnread(counts map[wren.ConvKey]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
