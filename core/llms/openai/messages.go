package openai

import "github.com/koscakluka/ema-docchat/core/llms"

type openAIMessage struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toOpenAIMessages(messages []llms.Message) []openAIMessage {
	openAIMessages := make([]openAIMessage, 0, len(messages))
	for _, message := range messages {
		if message.Content == "" {
			continue
		}

		var role messageRole
		switch message.Role {
		case llms.MessageRoleSystem:
			role = messageRoleSystem
		case llms.MessageRoleAssistant:
			role = messageRoleAssistant
		default:
			role = messageRoleUser
		}

		openAIMessages = append(openAIMessages, openAIMessage{
			Role:    role,
			Content: message.Content,
		})
	}
	return openAIMessages
}
