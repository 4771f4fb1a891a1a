// Package config loads docchat settings from defaults, an optional
// docchat.yaml, DOCCHAT_ environment variables and bound command flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LLMProviderOpenAI = "openai"
	LLMProviderGroq   = "groq"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Channel ChannelConfig
	LLM     LLMConfig
	Answer  AnswerConfig
	Audio   AudioConfig
	TTS     TTSConfig
	Log     LogConfig

	DeepgramAPIKey string
}

type ServerConfig struct {
	Addr          string
	AllowedOrigin string
}

type BackendConfig struct {
	URL string
}

type ChannelConfig struct {
	URL               string
	Room              string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
}

type AnswerConfig struct {
	Timeout      time.Duration
	MaxSentences int
}

type AudioConfig struct {
	Backend    string
	BufferSize int
}

type TTSConfig struct {
	Voice string
}

type LogConfig struct {
	Level string
}

// New returns a viper instance with docchat defaults and environment
// bindings. Flags can be bound to it before Load is called.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.allowed_origin", "http://localhost:3000")
	v.SetDefault("backend.url", "http://localhost:5000")
	v.SetDefault("channel.url", "ws://localhost:5000/ws")
	v.SetDefault("channel.room", "")
	v.SetDefault("channel.reconnect_attempts", 5)
	v.SetDefault("channel.reconnect_delay", time.Second)
	v.SetDefault("channel.connect_timeout", 20*time.Second)
	v.SetDefault("llm.provider", LLMProviderOpenAI)
	v.SetDefault("llm.model", "")
	v.SetDefault("answer.timeout", 30*time.Second)
	v.SetDefault("answer.max_sentences", 5)
	v.SetDefault("audio.backend", AudioBackendMiniaudio)
	v.SetDefault("audio.buffer_size", 1024)
	v.SetDefault("tts.voice", "")
	v.SetDefault("log.level", "info")

	v.SetConfigName("docchat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys keep their conventional names.
	_ = v.BindEnv("deepgram_api_key", "DOCCHAT_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY")
	_ = v.BindEnv("openai_api_key", "DOCCHAT_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("groq_api_key", "DOCCHAT_GROQ_API_KEY", "GROQ_API_KEY")

	return v
}

// BindFlags binds each flag to the key of the same name with dashes replaced
// by underscores, so --allowed-origin sets server.allowed_origin when
// registered in keys.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", flag, err)
		}
	}
	return nil
}

// Load reads the optional config file and decodes the settings.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:          v.GetString("server.addr"),
			AllowedOrigin: v.GetString("server.allowed_origin"),
		},
		Backend: BackendConfig{URL: v.GetString("backend.url")},
		Channel: ChannelConfig{
			URL:               v.GetString("channel.url"),
			Room:              v.GetString("channel.room"),
			ReconnectAttempts: v.GetInt("channel.reconnect_attempts"),
			ReconnectDelay:    v.GetDuration("channel.reconnect_delay"),
			ConnectTimeout:    v.GetDuration("channel.connect_timeout"),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(v.GetString("llm.provider")),
			Model:    v.GetString("llm.model"),
		},
		Answer: AnswerConfig{
			Timeout:      v.GetDuration("answer.timeout"),
			MaxSentences: v.GetInt("answer.max_sentences"),
		},
		Audio: AudioConfig{
			Backend:    strings.ToLower(v.GetString("audio.backend")),
			BufferSize: v.GetInt("audio.buffer_size"),
		},
		TTS:            TTSConfig{Voice: v.GetString("tts.voice")},
		Log:            LogConfig{Level: v.GetString("log.level")},
		DeepgramAPIKey: v.GetString("deepgram_api_key"),
	}

	switch cfg.LLM.Provider {
	case LLMProviderOpenAI:
		cfg.LLM.APIKey = v.GetString("openai_api_key")
	case LLMProviderGroq:
		cfg.LLM.APIKey = v.GetString("groq_api_key")
	default:
		return Config{}, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	switch cfg.Audio.Backend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		return Config{}, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}

	if cfg.Channel.ReconnectAttempts < 0 {
		return Config{}, fmt.Errorf("channel.reconnect_attempts must not be negative")
	}

	return cfg, nil
}
