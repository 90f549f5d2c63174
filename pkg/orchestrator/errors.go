package orchestrator

import "errors"


var (

	// ErrClientGone is returned by the Client Channel when the browser
	// connection drops or sustained outbound backpressure makes it
	// indistinguishable from dropped. It tears the whole session down.
	ErrClientGone = errors.New("client connection gone")

	ErrEmptyTranscription = errors.New("transcription returned empty text")

	ErrSTTProviderFailed = errors.New("speech-to-text provider failed")

	ErrLLMProviderFailed = errors.New("language model provider failed")

	ErrTTSProviderFailed = errors.New("text-to-speech provider failed")

	// ErrTimeout wraps a provider call exceeding its configured timeout.
	ErrTimeout = errors.New("provider call timed out")

	// ErrProtocolError marks a malformed or unexpected client frame. It
	// is logged and the offending frame dropped, never fatal to the
	// session.
	ErrProtocolError = errors.New("malformed client frame")

	ErrConfigError = errors.New("invalid configuration")

	ErrNilProvider = errors.New("required provider is nil")

	// errGenerationCancelled is returned by an LLMProvider's onToken
	// callback to unwind its streaming loop once the active
	// GenerationToken has moved on. It is never surfaced to the client.
	errGenerationCancelled = errors.New("generation superseded")
)
