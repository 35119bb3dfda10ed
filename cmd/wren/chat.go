package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	wren "github.com/wren-im/wren-go"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		creds := getCredentials()

		bridge := &uiBridge{}
		sess := wren.NewSession(client,
			wren.WithIdentity(creds),
			wren.WithDisplay(bridge),
			wren.WithNotifier(bridge),
			wren.WithSessionLogger(cliLogger()),
		)

		p := tea.NewProgram(newChatModel(sess, creds), tea.WithAltScreen())
		bridge.attach(p)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go sess.Run(ctx)

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("ui error: %w", err)
		}
		return nil
	},
}

// ============================================================================
// Session → UI bridge
// ============================================================================

// notifyThrottle gates alert delivery so a burst of messages makes one
// noise, not twenty.
const notifyThrottle = 800 * time.Millisecond

// uiBridge forwards session callbacks into the bubbletea program. The
// session loop must never block, and Program.Send never does.
type uiBridge struct {
	mu         sync.Mutex
	p          *tea.Program
	lastNotify time.Time
}

func (b *uiBridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

func (b *uiBridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (b *uiBridge) ShowMessage(msg wren.Message) { b.send(uiMessage{msg}) }

func (b *uiBridge) ShowHistory(conv wren.ConvKey, msgs []wren.Message) {
	b.send(uiHistory{conv: conv, msgs: msgs})
}

func (b *uiBridge) RosterChanged(users []wren.User) { b.send(uiRoster{users}) }

func (b *uiBridge) RoomsChanged(rooms []wren.Room) { b.send(uiRooms{rooms}) }

func (b *uiBridge) UnreadChanged(counts map[wren.ConvKey]int) { b.send(uiUnread{counts}) }

func (b *uiBridge) Notify(from, text string) {
	b.mu.Lock()
	now := time.Now()
	if now.Sub(b.lastNotify) < notifyThrottle {
		b.mu.Unlock()
		return
	}
	b.lastNotify = now
	b.mu.Unlock()
	b.send(uiNotify{from: from, text: text})
}
