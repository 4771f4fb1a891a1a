package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-docchat/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq api key not found")
	}

	client := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Chat streams a chat completion from Groq and returns the assembled
// response once the stream is done.
func (c *Client) Chat(ctx context.Context, messages []llms.Message, opts ...llms.ChatOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "groq chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model), attribute.Int("llm.messages", len(messages)))

	response, err := c.chat(ctx, messages, llms.ApplyChatOptions(opts...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, err
	}
	return response, nil
}

func (c *Client) chat(ctx context.Context, messages []llms.Message, options llms.ChatOptions) (*llms.Response, error) {
	groqMessages, err := toMessages(messages)
	if err != nil {
		return nil, err
	}

	reqBody := requestBody{
		Model:       c.model,
		Messages:    groqMessages,
		Stream:      true,
		MaxTokens:   options.MaxTokens,
		Temperature: options.Temperature,
	}
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	response := &llms.Response{}
	var content strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
		if len(chunk) == 0 {
			continue
		}
		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			logger.Debug("error unmarshalling chunk", "error", err)
			continue
		}
		if responseBody.XGroq != nil && responseBody.XGroq.Usage != nil {
			usage := responseBody.XGroq.Usage
			response.Usage = llms.Usage{
				InputTokens:  usage.PromptTokens,
				OutputTokens: usage.CompletionTokens,
				TotalTokens:  usage.TotalTokens,
			}
		}
		if len(responseBody.Choices) == 0 {
			continue
		}

		choice := responseBody.Choices[0]
		content.WriteString(choice.Delta.Content)
		if choice.FinishReason != nil {
			response.FinishReason = *choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading streamed response: %w", err)
	}

	response.Content = content.String()
	return response, nil
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	XGroq *struct {
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	} `json:"x_groq,omitempty"`
}
