package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/ema-docchat/core"
	"github.com/koscakluka/ema-docchat/core/documents"
	"github.com/muesli/reflow/wordwrap"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	agentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	interimStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// StatusText is the status line shown for a state.
func StatusText(state orchestration.State) string {
	switch state {
	case orchestration.StateTeaching:
		return "Introducing the document..."
	case orchestration.StateListening:
		return "Listening..."
	case orchestration.StateThinking:
		return "Thinking..."
	case orchestration.StateSpeaking:
		return "Speaking..."
	case orchestration.StateErrored:
		return "Something went wrong. Press space to try again."
	default:
		return "Press space to ask a question."
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	width := max(m.width-2, 20)
	var b strings.Builder

	title := "Document chat"
	if m.documentName != "" {
		title = fmt.Sprintf("%s · %s (%d words)", title, m.documentName, documents.CountWords(m.snapshot.DocumentText))
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	for _, turn := range m.visibleTurns() {
		label := userStyle.Render("You")
		if turn.Speaker == orchestration.SpeakerAgent {
			label = agentStyle.Render("Assistant")
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(wordwrap.String(turn.Text, width))
		b.WriteString("\n\n")
	}

	if m.interim != "" {
		b.WriteString(interimStyle.Render(wordwrap.String(m.interim, width)))
		b.WriteString("\n\n")
	}

	status := StatusText(m.snapshot.State)
	if m.snapshot.State.IsBusy() {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n")

	for _, line := range m.errorLines() {
		b.WriteString(errorStyle.Render(wordwrap.String(line, width)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	help := "space: ask · s: stop · q: quit"
	if !m.snapshot.State.CanListen() {
		help = "s: stop · q: quit"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

// visibleTurns keeps the newest turns that fit the terminal.
func (m Model) visibleTurns() []orchestration.Turn {
	turns := m.snapshot.Turns
	if m.height <= 0 {
		return turns
	}
	limit := max((m.height-8)/3, 2)
	if len(turns) > limit {
		return turns[len(turns)-limit:]
	}
	return turns
}

func (m Model) errorLines() []string {
	var lines []string
	errs := m.snapshot.Errors
	if errs.Audio != nil {
		lines = append(lines, "Audio: "+errs.Audio.Error())
	}
	if errs.Answer != nil {
		lines = append(lines, "Answer: "+errs.Answer.Error())
	}
	if errs.Channel != nil {
		lines = append(lines, "Connection: "+errs.Channel.Error())
	}
	if m.lastErr != nil && len(lines) == 0 {
		lines = append(lines, m.lastErr.Error())
	}
	return lines
}
