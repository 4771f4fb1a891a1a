package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-docchat/core"
	"github.com/koscakluka/ema-docchat/core/audio/miniaudio"
	"github.com/koscakluka/ema-docchat/core/audio/portaudio"
	"github.com/koscakluka/ema-docchat/core/backend"
	"github.com/koscakluka/ema-docchat/core/documents"
	"github.com/koscakluka/ema-docchat/core/notifications"
	stt "github.com/koscakluka/ema-docchat/core/speechtotext/deepgram"
	tts "github.com/koscakluka/ema-docchat/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-docchat/internal/config"
	"github.com/koscakluka/ema-docchat/internal/tui"
	"github.com/spf13/cobra"
)

var talkCmd = &cobra.Command{
	Use:   "talk <file.pdf>",
	Short: "Upload a PDF and talk about it",
	Args:  cobra.ExactArgs(1),
	RunE:  runTalk,
}

func init() {
	talkCmd.Flags().String("room", "", "room to relay the conversation to (no relay when empty)")
	talkCmd.Flags().String("channel-url", "ws://localhost:5000/ws", "room hub websocket url")
	talkCmd.Flags().String("audio-backend", config.AudioBackendMiniaudio, "audio backend (miniaudio, portaudio)")
	talkCmd.Flags().String("voice", "", "Deepgram voice")
	talkCmd.Flags().Bool("local-answers", false, "ask the language model directly instead of the backend")
	mustBind(settings, talkCmd.Flags(), map[string]string{
		"room":          "channel.room",
		"channel-url":   "channel.url",
		"audio-backend": "audio.backend",
		"voice":         "tts.voice",
	})
}

// audioDevice is a microphone and speaker owned for the whole conversation.
type audioDevice interface {
	orchestration.AudioInput
	orchestration.AudioOutput
	Close()
}

func runTalk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store := documents.NewStore()
	if err := uploadDocument(ctx, cfg, args[0], store); err != nil {
		return err
	}
	logger.Info("document ready", "name", store.Name(), "words", store.WordCount())

	device, err := openAudioDevice(cfg)
	if err != nil {
		return err
	}
	defer device.Close()

	recognizer, err := stt.NewTranscriptionClient(cfg.DeepgramAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create speech-to-text client: %w", err)
	}
	synthesizer, err := tts.NewTextToSpeechClient(cfg.DeepgramAPIKey, tts.ParseVoice(cfg.TTS.Voice),
		tts.WithEncodingInfo(device.EncodingInfo()))
	if err != nil {
		return fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	answerService, err := newTalkAnswerService(cmd, cfg)
	if err != nil {
		return err
	}

	feed := tui.NewEventFeed()
	opts := []orchestration.OrchestratorOption{
		orchestration.WithSpeechToTextClient(recognizer),
		orchestration.WithTextToSpeechClient(synthesizer),
		orchestration.WithAudioInput(device),
		orchestration.WithAudioOutput(device),
		orchestration.WithAnswerService(answerService),
		orchestration.WithAnswerTimeout(cfg.Answer.Timeout),
		orchestration.WithEventCallback(feed.Handle),
	}

	var conversation atomic.Pointer[orchestration.Orchestrator]
	var channel *notifications.Client
	if cfg.Channel.Room != "" {
		channel = notifications.Dial(ctx, cfg.Channel.URL,
			notifications.WithReconnectAttempts(cfg.Channel.ReconnectAttempts),
			notifications.WithReconnectDelay(cfg.Channel.ReconnectDelay),
			notifications.WithConnectTimeout(cfg.Channel.ConnectTimeout),
			notifications.WithStatusCallback(func(connected bool, err error) {
				if o := conversation.Load(); o != nil {
					o.SetChannelStatus(connected, err)
				}
			}),
		)
		defer channel.Close()

		opts = append(opts,
			orchestration.WithNotificationChannel(channel),
			orchestration.WithRoom(cfg.Channel.Room),
		)
		logger.Info("relaying conversation", "room", cfg.Channel.Room, "url", cfg.Channel.URL)
	}

	o := orchestration.NewOrchestrator(opts...)
	conversation.Store(o)
	defer o.Close()
	if channel != nil {
		seedChannelStatus(o, channel)
	}

	go func() {
		if err := o.Start(ctx, store.Text()); err != nil {
			logger.Warn("introduction failed", "error", err)
		}
	}()

	program := tea.NewProgram(tui.NewModel(ctx, o, feed, store.Name()), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run conversation ui: %w", err)
	}

	o.Stop()
	store.Clear()
	return nil
}

func uploadDocument(ctx context.Context, cfg config.Config, path string, store *documents.Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	contentType := http.DetectContentType(data)
	if filepath.Ext(path) == ".pdf" && contentType == "application/octet-stream" {
		contentType = backend.PDFContentType
	}

	client := backend.NewClient(cfg.Backend.URL)
	text, err := client.ExtractText(ctx, filepath.Base(path), contentType, data)
	if err != nil {
		return err
	}

	store.Set(filepath.Base(path), text)
	return nil
}

func openAudioDevice(cfg config.Config) (audioDevice, error) {
	switch cfg.Audio.Backend {
	case config.AudioBackendPortaudio:
		client, err := portaudio.NewClient(cfg.Audio.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio device: %w", err)
		}
		return client, nil
	default:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio device: %w", err)
		}
		return client, nil
	}
}

func newTalkAnswerService(cmd *cobra.Command, cfg config.Config) (orchestration.AnswerService, error) {
	if local, _ := cmd.Flags().GetBool("local-answers"); local {
		return newAnswerService(cfg)
	}
	return backend.NewClient(cfg.Backend.URL), nil
}

type channelStatus interface {
	Connected() bool
	Err() error
}

// seedChannelStatus applies the status the channel reached before the
// orchestrator existed to receive its status callbacks.
func seedChannelStatus(o *orchestration.Orchestrator, channel channelStatus) {
	o.SetChannelStatus(channel.Connected(), channel.Err())
}
