// Package tui is the terminal front-end of a voice conversation. Everything
// it shows is derived from the orchestrator snapshot; the only local state is
// the interim transcript and the terminal size.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-docchat/core"
	"github.com/koscakluka/ema-docchat/core/events"
)

// Conversation is the part of the orchestrator the UI drives.
type Conversation interface {
	Listen(ctx context.Context) error
	Stop()
	Snapshot() orchestration.Snapshot
}

// EventFeed carries orchestrator events into the program. Handle never
// blocks; events that do not fit are dropped since every message re-reads
// the snapshot anyway.
type EventFeed struct {
	events chan events.Event
}

func NewEventFeed() *EventFeed {
	return &EventFeed{events: make(chan events.Event, 64)}
}

func (f *EventFeed) Handle(event events.Event) {
	select {
	case f.events <- event:
	default:
	}
}

type Model struct {
	ctx          context.Context
	conversation Conversation
	feed         *EventFeed

	documentName string
	snapshot     orchestration.Snapshot
	interim      string
	lastErr      error

	spinner  spinner.Model
	width    int
	height   int
	quitting bool
}

func NewModel(ctx context.Context, conversation Conversation, feed *EventFeed, documentName string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		ctx:          ctx,
		conversation: conversation,
		feed:         feed,
		documentName: documentName,
		snapshot:     conversation.Snapshot(),
		spinner:      s,
		width:        80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.feed))
}
