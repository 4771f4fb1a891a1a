package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-docchat/core/texttospeech"
)

func newSpeakStub(t *testing.T, onConnect func(r *http.Request, conn *websocket.Conn)) *httptest.Server {
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

func speakURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readTypes(conn *websocket.Conn, types chan<- string) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			close(types)
			return
		}
		var parsed struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &parsed) == nil {
			types <- parsed.Type
		}
	}
}

func TestSpeechGeneratorStreamsAudioUntilFlushed(t *testing.T) {
	requests := make(chan string, 1)
	received := make(chan string, 8)
	server := newSpeakStub(t, func(r *http.Request, conn *websocket.Conn) {
		requests <- r.URL.RawQuery + " " + r.Header.Get("Authorization")

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var parsed struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal(msg, &parsed); err != nil {
				return
			}
			received <- parsed.Type

			switch parsed.Type {
			case "Speak":
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
			case "Flush":
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed","sequence_id":0}`))
			}
		}
	})

	client, err := NewTextToSpeechClient("secret", VoiceOrion, WithSpeakURL(speakURL(server)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	audioReceived := make(chan []byte, 4)
	ended := make(chan struct{})
	errs := make(chan error, 1)
	generator, err := client.NewSpeechGenerator(context.Background(),
		texttospeech.WithSpeechAudioCallback(func(audio []byte) { audioReceived <- audio }),
		texttospeech.WithSpeechEndedCallback(func() { close(ended) }),
		texttospeech.WithErrorCallback(func(err error) { errs <- err }),
	)
	if err != nil {
		t.Fatalf("expected generator, got %v", err)
	}
	defer generator.Close()

	select {
	case request := <-requests:
		for _, want := range []string{"encoding=linear16", "sample_rate=16000", "model=aura-orion-en", "container=none", "token secret"} {
			if !strings.Contains(request, want) {
				t.Fatalf("expected %q in request %q", want, request)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection")
	}

	if err := generator.SendText("The document contains 5 words."); err != nil {
		t.Fatalf("expected text to be sent, got %v", err)
	}
	if err := generator.EndOfText(); err != nil {
		t.Fatalf("expected end of text to be sent, got %v", err)
	}

	select {
	case audio := <-audioReceived:
		if len(audio) != 4 {
			t.Fatalf("expected 4 bytes of audio, got %d", len(audio))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for audio")
	}

	select {
	case <-ended:
	case err := <-errs:
		t.Fatalf("expected speech to end, got error %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speech end")
	}

	if err := generator.SendText("more"); err == nil {
		t.Fatalf("expected send after end of text to fail")
	}

	for _, want := range []string{"Speak", "Flush"} {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("expected %s message, got %s", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s message", want)
		}
	}
}

func TestSpeechGeneratorCancelSendsClearAndIsSilent(t *testing.T) {
	types := make(chan string, 8)
	server := newSpeakStub(t, func(_ *http.Request, conn *websocket.Conn) {
		readTypes(conn, types)
	})

	client, err := NewTextToSpeechClient("secret", "", WithSpeakURL(speakURL(server)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	errs := make(chan error, 1)
	generator, err := client.NewSpeechGenerator(context.Background(),
		texttospeech.WithErrorCallback(func(err error) { errs <- err }),
	)
	if err != nil {
		t.Fatalf("expected generator, got %v", err)
	}

	if err := generator.SendText("hello"); err != nil {
		t.Fatalf("expected text to be sent, got %v", err)
	}
	if err := generator.Cancel(); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if err := generator.Cancel(); err != nil {
		t.Fatalf("expected repeated cancel to be ignored, got %v", err)
	}
	if err := generator.Close(); err != nil {
		t.Fatalf("expected close after cancel to be ignored, got %v", err)
	}

	var got []string
	for msgType := range types {
		got = append(got, msgType)
	}
	want := []string{"Speak", "Clear", "Close"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected messages %v, got %v", want, got)
	}

	select {
	case err := <-errs:
		t.Fatalf("expected no error after cancel, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSpeechGeneratorReportsLostConnection(t *testing.T) {
	server := newSpeakStub(t, func(_ *http.Request, conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
		_ = conn.UnderlyingConn().Close()
	})

	client, err := NewTextToSpeechClient("secret", VoiceThalia, WithSpeakURL(speakURL(server)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	errs := make(chan error, 1)
	generator, err := client.NewSpeechGenerator(context.Background(),
		texttospeech.WithErrorCallback(func(err error) { errs <- err }),
	)
	if err != nil {
		t.Fatalf("expected generator, got %v", err)
	}
	defer generator.Close()

	_ = generator.SendText("hello")

	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error callback")
	}
}

func TestNewTextToSpeechClientValidatesInput(t *testing.T) {
	if _, err := NewTextToSpeechClient("", VoiceThalia); err == nil {
		t.Fatalf("expected missing api key to be rejected")
	}
	if _, err := NewTextToSpeechClient("secret", deepgramVoice("aura-unknown-en")); err == nil {
		t.Fatalf("expected unknown voice to be rejected")
	}

	client, err := NewTextToSpeechClient("secret", "")
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if client.voice != defaultVoice {
		t.Fatalf("expected default voice %s, got %s", defaultVoice, client.voice)
	}
}

func TestParseVoiceRoundTripsConfiguredNames(t *testing.T) {
	if voice := ParseVoice("aura-2-apollo-en"); voice != VoiceApollo {
		t.Fatalf("expected apollo voice, got %q", voice)
	}

	if _, err := NewTextToSpeechClient("secret", ParseVoice("robot")); err == nil {
		t.Fatalf("expected unknown voice to be rejected")
	}
}
