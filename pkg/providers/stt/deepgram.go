package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

// DeepgramSTT is the primary streaming STT Gateway backend. It also
// exposes a batch Transcribe call wired to the debug transcription
// endpoint, so the same credentials cover both paths.
type DeepgramSTT struct {
	apiKey   string
	host     string
	scheme   string
	wsScheme string
}

func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey:   apiKey,
		host:     "api.deepgram.com",
		scheme:   "https",
		wsScheme: "wss",
	}
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

// Transcribe is the batch path: a single PCM buffer in, a single
// transcript out.
func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte) (string, error) {
	u := url.URL{Scheme: s.scheme, Host: s.host, Path: "/v1/listen"}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audioPCM))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "audio/l16; rate=16000; channels=1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

// deepgramMessage is the subset of Deepgram's streaming response shape
// this gateway consumes.
type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// StreamTranscribe opens a streaming recognition connection and runs a
// read pump delivering interim and final events to onEvent. The
// returned channel accepts raw PCM chunks for the lifetime of ctx.
func (s *DeepgramSTT) StreamTranscribe(ctx context.Context, onEvent func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	u := url.URL{Scheme: s.wsScheme, Host: s.host, Path: "/v1/listen"}
	q := u.Query()
	q.Set("model", "nova-2")
	q.Set("language", "en-US")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("endpointing", "500")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + s.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	audio := make(chan []byte, 32)

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			select {
			case chunk, ok := <-audio:
				if !ok {
					return
				}
				if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg deepgramMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			transcript := msg.Channel.Alternatives[0].Transcript
			if transcript == "" {
				continue
			}
			if err := onEvent(transcript, msg.IsFinal); err != nil {
				return
			}
		}
	}()

	return audio, nil
}
