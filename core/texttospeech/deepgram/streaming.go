package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-docchat/core/audio"
	"github.com/koscakluka/ema-docchat/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
)

type streamingRequest struct {
	ws *websocket.Conn
	mu sync.Mutex

	options texttospeech.TextToSpeechOptions

	stateMu      sync.Mutex
	textComplete bool
	cancelled    bool
	closed       bool
	ended        bool

	done chan struct{}
}

// NewSpeechGenerator opens a fresh websocket to Deepgram. Generators are
// single use: once speech ends, or the generator is cancelled or closed, a new
// one has to be created.
func (c *TextToSpeechClient) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	ctx, span := tracer.Start(ctx, "open deepgram speech generator")
	defer span.End()

	req := &streamingRequest{
		options: texttospeech.TextToSpeechOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechEndedCallback: func() {},
			ErrorCallback:       func(error) {},
			EncodingInfo:        c.encoding,
		},
		done: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&req.options)
	}
	span.SetAttributes(attribute.String("request.voice", string(c.voice)))

	var err error
	if req.ws, err = c.connectWebsocket(ctx, req.options.EncodingInfo); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	go req.processIncomingMessages()

	return req, nil
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	urlValues := speakURL.Query()
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (r *streamingRequest) processIncomingMessages() {
	defer close(r.done)

	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			if r.isFinished() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}

			logger.Warn("deepgram speak websocket read failed", "error", err)
			r.options.ErrorCallback(fmt.Errorf("deepgram speak connection lost: %w", err))
			_ = r.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 && !r.isFinished() {
				r.options.SpeechAudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				r.stateMu.Lock()
				finished := r.textComplete && !r.cancelled && !r.closed && !r.ended
				if finished {
					r.ended = true
				}
				r.stateMu.Unlock()

				if finished {
					r.options.SpeechEndedCallback()
					_ = r.Close()
					return
				}
			case "Warning", "Error":
				if parsedMsg.Type == "Error" && !r.isFinished() {
					r.options.ErrorCallback(fmt.Errorf("deepgram speak error: %s", parsedMsg.Description))
					_ = r.Close()
					return
				}
				logger.Warn("deepgram speak warning", "description", parsedMsg.Description)
			}
		}
	}
}

func (r *streamingRequest) isFinished() bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.closed || r.cancelled || r.ended
}

func (r *streamingRequest) SendText(text string) error {
	r.stateMu.Lock()
	if r.closed {
		r.stateMu.Unlock()
		return fmt.Errorf("streaming request closed")
	} else if r.cancelled {
		r.stateMu.Unlock()
		return fmt.Errorf("streaming request cancelled")
	} else if r.textComplete {
		r.stateMu.Unlock()
		return fmt.Errorf("streaming request text already completed")
	}
	r.stateMu.Unlock()

	if err := r.sendWebsocketMessage(sendTextMsg{Type: "Speak", Text: text}); err != nil {
		return fmt.Errorf("failed to send websocket send text message: %w", err)
	}
	return nil
}

func (r *streamingRequest) EndOfText() error {
	r.stateMu.Lock()
	if r.closed {
		r.stateMu.Unlock()
		return fmt.Errorf("streaming request closed")
	} else if r.cancelled {
		r.stateMu.Unlock()
		return fmt.Errorf("streaming request cancelled")
	} else if r.textComplete {
		r.stateMu.Unlock()
		return nil
	}
	r.textComplete = true
	r.stateMu.Unlock()

	if err := r.sendWebsocketMessage(flushMsg); err != nil {
		return fmt.Errorf("failed to send websocket flush message: %w", err)
	}
	return nil
}

func (r *streamingRequest) Cancel() error {
	r.stateMu.Lock()
	if r.closed || r.cancelled {
		r.stateMu.Unlock()
		return nil
	}
	r.cancelled = true
	r.stateMu.Unlock()

	if err := r.sendWebsocketMessage(clearMsg); err != nil {
		logger.Debug("failed to send clear message", "error", err)
	}

	return r.Close()
}

func (r *streamingRequest) Close() error {
	r.stateMu.Lock()
	if r.closed {
		r.stateMu.Unlock()
		return nil
	}
	r.closed = true
	r.stateMu.Unlock()

	sendErr := r.sendWebsocketMessage(closeMsg)

	r.mu.Lock()
	closeErr := r.ws.Close()
	r.mu.Unlock()

	if sendErr != nil && closeErr != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(sendErr, closeErr))
	}
	return nil
}

type websocketMessage struct {
	Type string `json:"type"`
}

type sendTextMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (r *streamingRequest) sendWebsocketMessage(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
