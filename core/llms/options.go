package llms

import "github.com/koscakluka/ema-docchat/internal/utils"

// ChatOptions holds per-request generation settings. Zero values are left out
// of the request so the provider defaults apply.
type ChatOptions struct {
	MaxTokens   int
	Temperature *float64
}

type ChatOption func(*ChatOptions)

// WithMaxTokens caps the number of tokens the model may generate.
func WithMaxTokens(maxTokens int) ChatOption {
	return func(o *ChatOptions) {
		if maxTokens > 0 {
			o.MaxTokens = maxTokens
		}
	}
}

func WithTemperature(temperature float64) ChatOption {
	return func(o *ChatOptions) { o.Temperature = utils.Ptr(temperature) }
}

func ApplyChatOptions(opts ...ChatOption) ChatOptions {
	options := ChatOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
