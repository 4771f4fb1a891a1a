package main

import (
	"fmt"

	"github.com/koscakluka/ema-docchat/core/answers"
	"github.com/koscakluka/ema-docchat/core/llms/groq"
	"github.com/koscakluka/ema-docchat/core/llms/openai"
	"github.com/koscakluka/ema-docchat/internal/config"
	"github.com/koscakluka/ema-docchat/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend: PDF extraction, answers and the room hub",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", server.DefaultAddr, "address to listen on")
	serveCmd.Flags().String("allowed-origin", server.DefaultAllowedOrigin, "front-end origin allowed by CORS")
	serveCmd.Flags().String("llm-provider", config.LLMProviderOpenAI, "language model provider (openai, groq)")
	serveCmd.Flags().String("llm-model", "", "language model (provider default when empty)")
	mustBind(settings, serveCmd.Flags(), map[string]string{
		"addr":           "server.addr",
		"allowed-origin": "server.allowed_origin",
		"llm-provider":   "llm.provider",
		"llm-model":      "llm.model",
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	service, err := newAnswerService(cfg)
	if err != nil {
		return err
	}

	s := server.New(
		server.WithAnswerService(service),
		server.WithAllowedOrigin(cfg.Server.AllowedOrigin),
	)
	return s.ListenAndServe(cmd.Context(), cfg.Server.Addr)
}

// newAnswerService builds the answer service on the configured provider.
func newAnswerService(cfg config.Config) (*answers.Service, error) {
	var llm answers.LLM
	switch cfg.LLM.Provider {
	case config.LLMProviderGroq:
		opts := []groq.ClientOption{}
		if cfg.LLM.Model != "" {
			opts = append(opts, groq.WithModel(cfg.LLM.Model))
		}
		client, err := groq.NewClient(cfg.LLM.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create groq client: %w", err)
		}
		llm = client
	default:
		opts := []openai.ClientOption{}
		if cfg.LLM.Model != "" {
			opts = append(opts, openai.WithModel(cfg.LLM.Model))
		}
		client, err := openai.NewClient(cfg.LLM.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		llm = client
	}

	logger.Info("answer service ready", "provider", cfg.LLM.Provider)
	return answers.NewService(llm, answers.WithMaxSentences(cfg.Answer.MaxSentences)), nil
}
