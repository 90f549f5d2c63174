package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DeepgramTTS is the primary TTS Gateway backend. It uses Deepgram's
// REST speak endpoint, requesting raw linear16 PCM so the output can be
// forwarded to the client without re-encoding.
type DeepgramTTS struct {
	apiKey string
	host   string
	scheme string
	model  string
}

func NewDeepgramTTS(apiKey string) *DeepgramTTS {
	return &DeepgramTTS{
		apiKey: apiKey,
		host:   "api.deepgram.com",
		scheme: "https",
		model:  "aura-asteria-en",
	}
}

func (t *DeepgramTTS) Name() string {
	return "deepgram-tts"
}

func (t *DeepgramTTS) Synthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/v1/speak"}
	q := u.Query()
	q.Set("model", t.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "24000")
	u.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("deepgram tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("deepgram tts error (status %d): %s", resp.StatusCode, string(b))
	}

	const chunkSize = 4096
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("deepgram tts: read: %w", rerr)
		}
	}
}

// Abort is a no-op: Synthesize is a single request/response round trip
// with no held connection to tear down. Cancellation goes through ctx.
func (t *DeepgramTTS) Abort() error {
	return nil
}

