package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-docchat/core/events"
)

type eventMsg struct{ event events.Event }

type listenDoneMsg struct{ err error }

type stoppedMsg struct{}

func waitForEvent(feed *EventFeed) tea.Cmd {
	if feed == nil {
		return nil
	}
	return func() tea.Msg {
		return eventMsg{event: <-feed.events}
	}
}

func listenCmd(ctx context.Context, conversation Conversation) tea.Cmd {
	return func() tea.Msg {
		return listenDoneMsg{err: conversation.Listen(ctx)}
	}
}

func stopCmd(conversation Conversation) tea.Cmd {
	return func() tea.Msg {
		conversation.Stop()
		return stoppedMsg{}
	}
}
