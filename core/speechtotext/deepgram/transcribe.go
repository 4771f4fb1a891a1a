package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-docchat/core/audio"
	"github.com/koscakluka/ema-docchat/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
)

const defaultListenURL = "wss://api.deepgram.com/v1/listen"

type TranscriptionClient struct {
	apiKey    string
	listenURL string
	model     string
	language  string
	dialer    *websocket.Dialer
}

type ClientOption func(*TranscriptionClient)

// WithListenURL overrides the Deepgram streaming endpoint.
func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) { c.listenURL = listenURL }
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) { c.language = language }
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) (*TranscriptionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &TranscriptionClient{
		apiKey:    apiKey,
		listenURL: defaultListenURL,
		model:     "nova-3",
		language:  "en-US",
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// NewRecognizer opens a fresh streaming recognition connection. Each call
// owns its own websocket; nothing is shared between recognizers.
func (c *TranscriptionClient) NewRecognizer(ctx context.Context, opts ...speechtotext.TranscriptionOption) (speechtotext.Recognizer, error) {
	ctx, span := tracer.Start(ctx, "open deepgram recognizer")
	defer span.End()

	options := speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	callbacks, wsConfig := newCallbackConfig(options)
	wsConfig.sampleRate = encoding.SampleRate
	wsConfig.encoding = encoding.Format.Name()
	span.SetAttributes(
		attribute.String("request.encoding", wsConfig.encoding),
		attribute.Int("request.sample_rate", wsConfig.sampleRate),
	)

	conn, err := c.connectWebsocket(ctx, wsConfig)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	r := &recognizer{
		conn:      conn,
		callbacks: callbacks,
		done:      make(chan struct{}),
	}
	r.lastMsgTs.Store(time.Now().UnixNano())

	keepAliveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.stopKeepAlive = cancel
	go r.keepAlive(keepAliveCtx, options.EncodingInfo)
	go r.readAndProcessMessages()

	return r, nil
}

type callbackConfig struct {
	interimTranscriptionCallback func(string)
	transcriptionCallback        func(string)
	startSpeechCallback          func()
	endSpeechCallback            func()
	errorCallback                func(error)
}

type connectionOptions struct {
	sampleRate int
	encoding   string

	shouldDetectSpeechStart            bool
	shouldEnhanceSpeechEndingDetection bool
	shouldRequestInterimResults        bool
}

func newCallbackConfig(options speechtotext.TranscriptionOptions) (callbackConfig, connectionOptions) {
	callbacks := callbackConfig{
		interimTranscriptionCallback: func(string) {},
		transcriptionCallback:        func(string) {},
		startSpeechCallback:          func() {},
		endSpeechCallback:            func() {},
		errorCallback:                func(error) {},
	}
	wsConfig := connectionOptions{}

	if options.InterimTranscriptionCallback != nil {
		callbacks.interimTranscriptionCallback = options.InterimTranscriptionCallback
		wsConfig.shouldRequestInterimResults = true
	}
	if options.TranscriptionCallback != nil {
		callbacks.transcriptionCallback = options.TranscriptionCallback
		wsConfig.shouldEnhanceSpeechEndingDetection = true
	}
	if options.SpeechStartedCallback != nil {
		callbacks.startSpeechCallback = options.SpeechStartedCallback
		wsConfig.shouldDetectSpeechStart = true
	}
	if options.SpeechEndedCallback != nil {
		callbacks.endSpeechCallback = options.SpeechEndedCallback
		wsConfig.shouldEnhanceSpeechEndingDetection = true
	}
	if options.ErrorCallback != nil {
		callbacks.errorCallback = options.ErrorCallback
	}

	return callbacks, wsConfig
}

func (c *TranscriptionClient) connectWebsocket(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	if options.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
	} else if options.shouldRequestInterimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")
	if options.shouldDetectSpeechStart || options.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("vad_events", "true")
	}

	listenURL.RawQuery = queryParams.Encode()
	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type recognizer struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	callbacks callbackConfig

	lastMsgTs             atomic.Int64
	accumulatedTranscript string
	unendedSegment        bool

	closed        atomic.Bool
	closeOnce     sync.Once
	stopKeepAlive context.CancelFunc
	done          chan struct{}
}

func (r *recognizer) SendAudio(audio []byte) error {
	if r.closed.Load() {
		return fmt.Errorf("recognizer closed")
	}

	r.lastMsgTs.Store(time.Now().UnixNano())
	return r.write(websocket.BinaryMessage, audio)
}

func (r *recognizer) write(messageType int, data []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if err := r.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (r *recognizer) writeControl(msgType string) error {
	msg, err := json.Marshal(struct {
		Type string `json:"type"`
	}{Type: msgType})
	if err != nil {
		return err
	}
	return r.write(websocket.TextMessage, msg)
}

// Close asks Deepgram to finish the stream and drops the connection without
// waiting for trailing results.
func (r *recognizer) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.stopKeepAlive()

		if closeErr := r.writeControl(string(api.TypeCloseStreamResponse)); closeErr != nil {
			logger.Debug("failed to send close stream message", "error", closeErr)
		}

		r.connMu.Lock()
		err = r.conn.Close()
		r.connMu.Unlock()
		<-r.done
	})
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to close deepgram websocket: %w", err)
	}
	return nil
}

func (r *recognizer) readAndProcessMessages() {
	defer close(r.done)

	for {
		msgType, msg, err := r.conn.ReadMessage()
		if err != nil {
			if r.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}

			logger.Warn("failed to read deepgram websocket message", "error", err)
			r.callbacks.errorCallback(fmt.Errorf("deepgram connection lost: %w", err))
			return
		}
		if msgType != websocket.BinaryMessage {
			r.processMessage(msg)
		}
	}
}

func (r *recognizer) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return
		}

		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}

		if msgResp.IsFinal {
			if len(transcript) > 0 {
				r.unendedSegment = true
				r.accumulatedTranscript += " " + transcript
			}
			if msgResp.SpeechFinal {
				r.onSpeechEnded()
			}
		} else if len(transcript) > 0 {
			r.callbacks.interimTranscriptionCallback(strings.TrimSpace(r.accumulatedTranscript + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		if r.unendedSegment {
			r.onSpeechEnded()
		}

	case api.TypeSpeechStartedResponse:
		r.unendedSegment = true
		r.callbacks.startSpeechCallback()

	case "Error":
		var errResp struct {
			Description string `json:"description"`
			Message     string `json:"message"`
		}
		_ = json.Unmarshal(msg, &errResp)
		r.callbacks.errorCallback(fmt.Errorf("deepgram error: %s %s", errResp.Description, errResp.Message))
	}
}

func (r *recognizer) onSpeechEnded() {
	r.unendedSegment = false
	fullTranscript := strings.TrimSpace(r.accumulatedTranscript)
	r.accumulatedTranscript = ""
	if len(fullTranscript) > 0 {
		r.callbacks.transcriptionCallback(fullTranscript)
	}
	r.callbacks.endSpeechCallback()
}

// keepAlive fills capture gaps with silence for a second so endpointing
// still triggers, then falls back to KeepAlive messages.
func (r *recognizer) keepAlive(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const tick = 50 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	chunk := make([]byte, encoding.BytesPerSecond()*int(tick/time.Millisecond)/1000)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	sinceLastAudio := func() time.Duration {
		return time.Since(time.Unix(0, r.lastMsgTs.Load()))
	}

	state := silenceGeneratorStateWaiting
	var firstSilenceTime, lastKeepAliveTime time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch state {
			case silenceGeneratorStateWaiting:
				if sinceLastAudio() > tick {
					state = silenceGeneratorStateSilence
					firstSilenceTime = time.Now()
				}

			case silenceGeneratorStateSilence:
				if sinceLastAudio() < tick {
					state = silenceGeneratorStateWaiting
					continue
				}
				if time.Since(firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = time.Now()
					continue
				}

				if len(chunk) > 0 {
					if err := r.write(websocket.BinaryMessage, chunk); err != nil {
						logger.Debug("failed to send silence", "error", err)
					}
				}

			case silenceGeneratorStateKeepAlive:
				if sinceLastAudio() < tick {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = time.Now()
					if err := r.writeControl("KeepAlive"); err != nil {
						logger.Debug("failed to send keep alive", "error", err)
					}
				}
			}
		}
	}
}
