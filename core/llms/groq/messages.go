package groq

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-docchat/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

func toMessages(messages []llms.Message) ([]message, error) {
	groqMessages := []message{}
	if err := copier.Copy(&groqMessages, messages); err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	nonEmpty := groqMessages[:0]
	for _, msg := range groqMessages {
		if msg.Content != "" {
			nonEmpty = append(nonEmpty, msg)
		}
	}
	return nonEmpty, nil
}
