package openai

import (
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
	defaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
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
		return nil, fmt.Errorf("openai api key not found")
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

// Chat sends the messages to the chat completions endpoint and returns the
// first choice.
func (c *Client) Chat(ctx context.Context, messages []llms.Message, opts ...llms.ChatOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "openai chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model), attribute.Int("llm.messages", len(messages)))

	options := llms.ApplyChatOptions(opts...)
	reqBody := requestBody{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   options.MaxTokens,
		Temperature: options.Temperature,
	}

	response, err := c.send(ctx, reqBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("llm.usage.total_tokens", response.Usage.TotalTokens))
	return response, nil
}

func (c *Client) send(ctx context.Context, reqBody requestBody) (*llms.Response, error) {
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

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warn("openai returned non-OK status", "status", resp.Status)
		return nil, fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	var responseBody responseBody
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		return nil, fmt.Errorf("error unmarshalling response body: %w", err)
	}
	if len(responseBody.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	choice := responseBody.Choices[0]
	return &llms.Response{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: llms.Usage{
			InputTokens:  responseBody.Usage.PromptTokens,
			OutputTokens: responseBody.Usage.CompletionTokens,
			TotalTokens:  responseBody.Usage.TotalTokens,
		},
	}, nil
}

type requestBody struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
