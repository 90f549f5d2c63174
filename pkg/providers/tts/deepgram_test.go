package tts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestDeepgramTTSSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speak" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("model"); got != "aura-asteria-en" {
			t.Errorf("expected model aura-asteria-en, got %s", got)
		}
		if got := r.URL.Query().Get("encoding"); got != "linear16" {
			t.Errorf("expected encoding linear16, got %s", got)
		}
		if got := r.URL.Query().Get("sample_rate"); got != "24000" {
			t.Errorf("expected sample_rate 24000, got %s", got)
		}
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "hello") {
			t.Errorf("expected request body to contain text, got %s", body)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte{1, 2, 3, 4, 5, 6})
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	tts := &DeepgramTTS{
		apiKey: "test-key",
		host:   u.Host,
		scheme: "http",
		model:  "aura-asteria-en",
	}

	var audio []byte
	err := tts.Synthesize(context.Background(), "hello", func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio) != 6 {
		t.Errorf("expected 6 bytes, got %d", len(audio))
	}
	if tts.Name() != "deepgram-tts" {
		t.Errorf("expected deepgram-tts, got %s", tts.Name())
	}
	if err := tts.Abort(); err != nil {
		t.Errorf("unexpected error on abort: %v", err)
	}
}
