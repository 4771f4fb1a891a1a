package llms

// Message is a single chat message sent to a language model
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole describes who the message is from
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

func SystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

// Usage is the token accounting reported by the provider, when it reports
// any.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is a single completed response from a language model
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}
