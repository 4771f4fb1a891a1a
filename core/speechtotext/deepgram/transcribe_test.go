package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-docchat/core/audio"
	"github.com/koscakluka/ema-docchat/core/speechtotext"
)

func newDeepgramStub(t *testing.T, onConnect func(r *http.Request, conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		onConnect(r, conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestRecognizerEmitsUtteranceOnSpeechFinal(t *testing.T) {
	queries := make(chan string, 1)
	server := newDeepgramStub(t, func(r *http.Request, conn *websocket.Conn) {
		queries <- r.URL.RawQuery + " " + r.Header.Get("Authorization")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SpeechStarted"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":false,"speech_final":false,"channel":{"alternatives":[{"transcript":"what is"}]}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"What is"}]}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"the main topic?"}]}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := NewTranscriptionClient("secret", WithListenURL(wsURL(server)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	transcripts := make(chan string, 1)
	interim := make(chan string, 4)
	started := make(chan struct{}, 1)
	recognizer, err := client.NewRecognizer(context.Background(),
		speechtotext.WithTranscriptionCallback(func(transcript string) { transcripts <- transcript }),
		speechtotext.WithInterimTranscriptionCallback(func(transcript string) { interim <- transcript }),
		speechtotext.WithSpeechStartedCallback(func() { started <- struct{}{} }),
		speechtotext.WithEncodingInfo(audio.GetDefaultEncodingInfo()),
	)
	if err != nil {
		t.Fatalf("expected recognizer, got %v", err)
	}
	defer recognizer.Close()

	select {
	case query := <-queries:
		for _, want := range []string{"encoding=linear16", "sample_rate=16000", "vad_events=true", "Token secret"} {
			if !strings.Contains(query, want) {
				t.Fatalf("expected %q in request %q", want, query)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection")
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speech start")
	}

	select {
	case transcript := <-transcripts:
		if transcript != "What is the main topic?" {
			t.Fatalf("expected accumulated transcript, got %q", transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcript")
	}

	if got := <-interim; got != "what is" {
		t.Fatalf("expected interim transcript, got %q", got)
	}
}

func TestRecognizerReportsLostConnection(t *testing.T) {
	server := newDeepgramStub(t, func(_ *http.Request, conn *websocket.Conn) {
		_ = conn.UnderlyingConn().Close()
	})

	client, err := NewTranscriptionClient("secret", WithListenURL(wsURL(server)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	errs := make(chan error, 1)
	recognizer, err := client.NewRecognizer(context.Background(),
		speechtotext.WithErrorCallback(func(err error) { errs <- err }),
	)
	if err != nil {
		t.Fatalf("expected recognizer, got %v", err)
	}
	defer recognizer.Close()

	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection error")
	}
}

func TestRecognizerCloseIsIdempotentAndSilent(t *testing.T) {
	server := newDeepgramStub(t, func(_ *http.Request, conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, _ := NewTranscriptionClient("secret", WithListenURL(wsURL(server)))

	errs := make(chan error, 1)
	recognizer, err := client.NewRecognizer(context.Background(),
		speechtotext.WithErrorCallback(func(err error) { errs <- err }),
	)
	if err != nil {
		t.Fatalf("expected recognizer, got %v", err)
	}

	if err := recognizer.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if err := recognizer.Close(); err != nil {
		t.Fatalf("expected repeated close to succeed, got %v", err)
	}
	if err := recognizer.SendAudio([]byte{0, 0}); err == nil {
		t.Fatalf("expected send after close to fail")
	}

	select {
	case err := <-errs:
		t.Fatalf("expected no error callback after close, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewTranscriptionClientRequiresKey(t *testing.T) {
	if _, err := NewTranscriptionClient(""); err == nil {
		t.Fatalf("expected missing key to fail")
	}
}

func TestConvertEncodingRejectsUnsupportedRates(t *testing.T) {
	if _, err := convertEncoding(audio.EncodingInfo{SampleRate: 44100, Format: audio.EncodingLinear16}); err == nil {
		t.Fatalf("expected 44.1kHz to be rejected")
	}
	if _, err := convertEncoding(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw}); err == nil {
		t.Fatalf("expected mulaw at 16kHz to be rejected")
	}
	encoding, err := convertEncoding(audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw})
	if err != nil || encoding.Format != encodingMulaw {
		t.Fatalf("expected mulaw at 8kHz, got %+v %v", encoding, err)
	}
}
