package orchestration

import (
	"fmt"
	"slices"
	"time"

	"github.com/koscakluka/ema-docchat/core/documents"
)

type Speaker string

const (
	SpeakerUser  Speaker = "USER"
	SpeakerAgent Speaker = "AGENT"
)

// Turn is one utterance in the conversation log. Turns are immutable once
// appended.
type Turn struct {
	ID        string
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// conversationLog is the append-only, chronological turn log.
type conversationLog struct {
	turns []Turn
}

func (c *conversationLog) append(turn Turn) {
	c.turns = append(c.turns, turn)
}

// values returns a copy so callers can never mutate appended turns.
func (c *conversationLog) values() []Turn {
	return slices.Clone(c.turns)
}

// Snapshot is a point-in-time view of the conversation.
type Snapshot struct {
	State        State
	Turns        []Turn
	Errors       Errors
	DocumentText string
}

// Introduction is spoken when a conversation about a document starts.
func Introduction(documentText string) string {
	return fmt.Sprintf(
		"I'll teach you about the document. The document contains %d words. Let me know if you have any questions.",
		documents.CountWords(documentText),
	)
}
