package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestDeepgramSTTTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := struct {
			Results struct {
				Channels []struct {
					Alternatives []struct {
						Transcript string `json:"transcript"`
					} `json:"alternatives"`
				} `json:"channels"`
			} `json:"results"`
		}{}
		resp.Results.Channels = []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		}{
			{Alternatives: []struct {
				Transcript string `json:"transcript"`
			}{{Transcript: "batch transcript"}}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	s := &DeepgramSTT{apiKey: "test-key", host: u.Host, scheme: "http", wsScheme: "ws"}

	got, err := s.Transcribe(context.Background(), []byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "batch transcript" {
		t.Errorf("expected 'batch transcript', got %q", got)
	}
	if s.Name() != "deepgram-stt" {
		t.Errorf("expected deepgram-stt, got %s", s.Name())
	}
}

func TestDeepgramSTTStreamTranscribe(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		// An interim result, then a final.
		interim, _ := json.Marshal(map[string]interface{}{
			"type":     "Results",
			"is_final": false,
			"channel": map[string]interface{}{
				"alternatives": []map[string]string{{"transcript": "hello wor"}},
			},
		})
		conn.Write(r.Context(), websocket.MessageText, interim)

		final, _ := json.Marshal(map[string]interface{}{
			"type":     "Results",
			"is_final": true,
			"channel": map[string]interface{}{
				"alternatives": []map[string]string{{"transcript": "hello world"}},
			},
		})
		conn.Write(r.Context(), websocket.MessageText, final)

		<-r.Context().Done()
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	s := &DeepgramSTT{apiKey: "test-key", host: u.Host, scheme: "http", wsScheme: "ws"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type event struct {
		text    string
		isFinal bool
	}
	events := make(chan event, 4)
	_, err := s.StreamTranscribe(ctx, func(transcript string, isFinal bool) error {
		events <- event{transcript, isFinal}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []event
	for len(got) < 2 {
		select {
		case e := <-events:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v so far", got)
		}
	}

	if got[0].text != "hello wor" || got[0].isFinal {
		t.Errorf("expected first event to be the interim result, got %+v", got[0])
	}
	if got[1].text != "hello world" || !got[1].isFinal {
		t.Errorf("expected second event to be the final result, got %+v", got[1])
	}
	if !strings.HasPrefix(gotAuth, "Token ") {
		t.Errorf("expected an Authorization header on the dial, got %q", gotAuth)
	}
}
