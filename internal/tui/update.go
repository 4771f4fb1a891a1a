package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-docchat/core"
	"github.com/koscakluka/ema-docchat/core/events"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		switch e := msg.event.(type) {
		case events.UserTranscriptInterimUpdated:
			m.interim = e.Transcript
		case events.TurnAppended:
			m.interim = ""
		case events.StateChanged:
			if orchestration.State(e.To) != orchestration.StateListening {
				m.interim = ""
			}
		}
		m.snapshot = m.conversation.Snapshot()
		return m, waitForEvent(m.feed)

	case listenDoneMsg:
		m.snapshot = m.conversation.Snapshot()
		if msg.err != nil && !errors.Is(msg.err, orchestration.ErrListenRejected) {
			m.lastErr = msg.err
		} else {
			m.lastErr = nil
		}
		return m, nil

	case stoppedMsg:
		m.snapshot = m.conversation.Snapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Sequence(stopCmd(m.conversation), tea.Quit)
	case " ", "space":
		// Listening is only offered while nothing else is in progress.
		if !m.snapshot.State.CanListen() {
			return m, nil
		}
		m.lastErr = nil
		return m, listenCmd(m.ctx, m.conversation)
	case "s":
		return m, stopCmd(m.conversation)
	}
	return m, nil
}
