package deepgram

import (
	"fmt"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-docchat/core/audio"
)

const defaultSpeakURL = "wss://api.deepgram.com/v1/speak"

type TextToSpeechClient struct {
	apiKey   string
	speakURL string
	voice    deepgramVoice
	encoding audio.EncodingInfo
	dialer   *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

// WithSpeakURL overrides the Deepgram streaming speak endpoint.
func WithSpeakURL(speakURL string) ClientOption {
	return func(c *TextToSpeechClient) { c.speakURL = speakURL }
}

func WithEncodingInfo(encoding audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		if !encoding.IsZero() {
			c.encoding = encoding
		}
	}
}

func NewTextToSpeechClient(apiKey string, voice deepgramVoice, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	if voice == "" {
		voice = defaultVoice
	} else if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	client := &TextToSpeechClient{
		apiKey:   apiKey,
		speakURL: defaultSpeakURL,
		voice:    voice,
		encoding: audio.GetDefaultEncodingInfo(),
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *TextToSpeechClient) SetVoice(voice deepgramVoice) {
	c.voice = voice
}
