package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-docchat/core/audio"
	"github.com/koscakluka/ema-docchat/core/notifications"
	"github.com/koscakluka/ema-docchat/core/speechtotext"
	"github.com/koscakluka/ema-docchat/core/texttospeech"
)

// handleTracker counts the speech handles open at the same time.
type handleTracker struct {
	open atomic.Int32
	max  atomic.Int32
}

func (h *handleTracker) opened() {
	current := h.open.Add(1)
	for {
		highest := h.max.Load()
		if current <= highest || h.max.CompareAndSwap(highest, current) {
			return
		}
	}
}

func (h *handleTracker) closed() { h.open.Add(-1) }

type speechToTextStub struct {
	tracker *handleTracker
	// onOpen runs in its own goroutine for every recognizer that is opened.
	onOpen  func(opts speechtotext.TranscriptionOptions)
	openErr error

	opened atomic.Int32
}

func (s *speechToTextStub) NewRecognizer(_ context.Context, opts ...speechtotext.TranscriptionOption) (speechtotext.Recognizer, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}

	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	s.opened.Add(1)
	if s.tracker != nil {
		s.tracker.opened()
	}
	if s.onOpen != nil {
		go s.onOpen(options)
	}
	return &recognizerStub{tracker: s.tracker}, nil
}

type recognizerStub struct {
	tracker   *handleTracker
	closeOnce sync.Once
	closed    atomic.Bool
}

func (r *recognizerStub) SendAudio([]byte) error {
	if r.closed.Load() {
		return errors.New("recognizer closed")
	}
	return nil
}

func (r *recognizerStub) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if r.tracker != nil {
			r.tracker.closed()
		}
	})
	return nil
}

type audioInputStub struct {
	startErr error

	started atomic.Int32
	stopped atomic.Int32
}

func (a *audioInputStub) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (a *audioInputStub) StartCapture(_ context.Context, onAudio func([]byte)) error {
	if a.startErr != nil {
		return a.startErr
	}
	a.started.Add(1)
	onAudio([]byte{0, 0})
	return nil
}

func (a *audioInputStub) StopCapture() error {
	a.stopped.Add(1)
	return nil
}

type textToSpeechStub struct {
	tracker *handleTracker
	openErr error
	// hold delays the end of speech until it is closed.
	hold chan struct{}
	// fail makes every generator report an error instead of speech.
	fail error

	mu     sync.Mutex
	spoken []string
}

func (s *textToSpeechStub) NewSpeechGenerator(_ context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}

	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if s.tracker != nil {
		s.tracker.opened()
	}
	return &generatorStub{stub: s, options: options}, nil
}

func (s *textToSpeechStub) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type generatorStub struct {
	stub    *textToSpeechStub
	options texttospeech.TextToSpeechOptions

	cancelled atomic.Bool
	closeOnce sync.Once
}

func (g *generatorStub) SendText(text string) error {
	g.stub.mu.Lock()
	g.stub.spoken = append(g.stub.spoken, text)
	g.stub.mu.Unlock()
	return nil
}

func (g *generatorStub) EndOfText() error {
	go func() {
		if g.stub.hold != nil {
			<-g.stub.hold
		}
		if g.stub.fail != nil {
			g.options.ErrorCallback(g.stub.fail)
			return
		}
		g.options.SpeechAudioCallback([]byte{1, 2})
		g.options.SpeechEndedCallback()
	}()
	return nil
}

func (g *generatorStub) Cancel() error {
	g.cancelled.Store(true)
	return g.Close()
}

func (g *generatorStub) Close() error {
	g.closeOnce.Do(func() {
		if g.stub.tracker != nil {
			g.stub.tracker.closed()
		}
	})
	return nil
}

type audioOutputStub struct {
	mu      sync.Mutex
	audio   [][]byte
	cleared int
}

func (a *audioOutputStub) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (a *audioOutputStub) SendAudio(audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audio = append(a.audio, audio)
	return nil
}

func (a *audioOutputStub) ClearBuffer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleared++
}

func (a *audioOutputStub) Mark(name string, callback func(string)) error {
	go callback(name)
	return nil
}

func (a *audioOutputStub) Cleared() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cleared
}

type answerServiceStub struct {
	ask func(ctx context.Context, question, documentText string) (string, error)

	calls atomic.Int32
}

func (a *answerServiceStub) Ask(ctx context.Context, question, documentText string) (string, error) {
	a.calls.Add(1)
	return a.ask(ctx, question, documentText)
}

func answerWith(answer string) *answerServiceStub {
	return &answerServiceStub{ask: func(context.Context, string, string) (string, error) { return answer, nil }}
}

type channelStub struct {
	events chan notifications.Envelope

	mu        sync.Mutex
	joined    []string
	published []string
}

func newChannelStub() *channelStub {
	return &channelStub{events: make(chan notifications.Envelope, 8)}
}

func (c *channelStub) Join(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, roomID)
	return nil
}

func (c *channelStub) Publish(msgType string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msgType)
	return nil
}

func (c *channelStub) Events() <-chan notifications.Envelope { return c.events }

func (c *channelStub) Published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published...)
}

// transcribe makes every recognizer produce text as its final transcript.
func transcribe(text string) func(speechtotext.TranscriptionOptions) {
	return func(opts speechtotext.TranscriptionOptions) {
		opts.SpeechStartedCallback()
		opts.InterimTranscriptionCallback(text)
		opts.TranscriptionCallback(text)
	}
}

func stateRecorder() (OrchestratorOption, chan State) {
	states := make(chan State, 32)
	return WithStateCallback(func(state State) { states <- state }), states
}

func waitForState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

// drainStates collects every state change recorded so far. The orchestrator
// must be closed first so all events were delivered.
func drainStates(states chan State) []State {
	var got []State
	for {
		select {
		case state := <-states:
			got = append(got, state)
		default:
			return got
		}
	}
}
