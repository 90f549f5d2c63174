package orchestrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)


// GenerationToken is the monotonic cooperative-cancellation id. Every
// async activity spawned for a generation carries the token it was
// spawned under and checks it against the session's active token
// before emitting anything.
type GenerationToken int64


type GenerationState int

const (
	StateIdle GenerationState = iota
	StateBuffering
	StateGenerating
)

func (s GenerationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateGenerating:
		return "generating"
	default:
		return "unknown"
	}
}


// Session is the supervisor of one client connection: it owns the
// generation state, the GenerationToken counter, and the regret/merge
// buffer state under a single mutex, matching a logically
// single-threaded event loop shared-resource policy.
type Session struct {
	id     string
	logger Logger
	cfg    Config
	metrics Metrics

	client *ClientChannel
	stt    StreamingSTTProvider
	llm    LLMProvider
	tts    TTSProvider

	history *ChatHistory
	level   *AudioLevelMeter

	mu            sync.Mutex
	state         GenerationState
	activeToken   GenerationToken
	pendingText   string
	lastCommitted string
	quietTimer    *time.Timer
	quietEpoch    int64
	genCancel     context.CancelFunc

	sttAudio chan<- []byte

	ctx    context.Context
	cancel context.CancelFunc
}


// NewSession constructs a session bound to an already-accepted Client
// Channel. Run must be called to drive it.
func NewSession(id string, client *ClientChannel, stt StreamingSTTProvider, llm LLMProvider, tts TTSProvider, cfg Config, logger Logger, metrics Metrics, systemPreamble string) *Session {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      id,
		logger:  logger,
		cfg:     cfg,
		metrics: metrics,
		client:  client,
		stt:     stt,
		llm:     llm,
		tts:     tts,
		history: NewChatHistory(systemPreamble, cfg.MaxContextMessages),
		level:   NewAudioLevelMeter(),
		ctx:     ctx,
		cancel:  cancel,
	}
}


// Run drives the session until the client disconnects or a fatal error
// occurs. It owns the lifetime of every goroutine the session spawns.
func (s *Session) Run(parent context.Context) error {
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()
	defer s.teardown()

	g, ctx := errgroup.WithContext(parent)
	s.ctx, s.cancel = context.WithCancel(ctx)

	g.Go(func() error {
		return s.client.Run(s.ctx)
	})

	g.Go(func() error {
		return s.client.ReadLoop(s.ctx, s.onAudioIn, s.onControlIn)
	})

	g.Go(func() error {
		return s.connectSTT(s.ctx)
	})

	return g.Wait()
}

func (s *Session) teardown() {
	s.cancel()
	s.mu.Lock()
	s.cancelQuietTimerLocked()
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
	s.mu.Unlock()
	s.client.Close()
}


// connectSTT opens the streaming STT connection with capped exponential
// backoff on failure. After the attempts are exhausted it surfaces an
// error frame and the session continues without STT.
func (s *Session) connectSTT(ctx context.Context) error {
	if s.stt == nil {
		return nil
	}
	backoff := 250 * time.Millisecond
	const maxAttempts = 5
	const maxBackoff = 4 * time.Second
	sttTimeout := time.Duration(s.cfg.STTTimeoutMS) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ch, err := s.dialSTT(ctx, sttTimeout)
		if err == nil {
			s.mu.Lock()
			s.sttAudio = ch
			s.mu.Unlock()
			<-ctx.Done()
			return nil
		}
		s.logger.Warn("stt connect failed", "session_id", s.id, "attempt", attempt, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	s.logger.Error("stt exhausted reconnect attempts, continuing without stt", "session_id", s.id)
	s.client.SendMustDeliver(errorFrame("speech-to-text unavailable"))
	return nil
}

// sttDialResult carries a single StreamTranscribe attempt's outcome back
// from the goroutine dialSTT races against sttTimeout.
type sttDialResult struct {
	ch  chan<- []byte
	err error
}

// dialSTT bounds a single StreamTranscribe attempt to sttTimeout,
// reporting ErrTimeout if the provider doesn't answer in time. The
// stream itself, once established, keeps running for the lifetime of
// ctx - the timeout only guards the connect step, not the open
// connection's lifetime.
func (s *Session) dialSTT(ctx context.Context, sttTimeout time.Duration) (chan<- []byte, error) {
	if sttTimeout <= 0 {
		return s.stt.StreamTranscribe(ctx, s.onSTTEvent)
	}
	result := make(chan sttDialResult, 1)
	go func() {
		ch, err := s.stt.StreamTranscribe(ctx, s.onSTTEvent)
		result <- sttDialResult{ch, err}
	}()
	select {
	case res := <-result:
		return res.ch, res.err
	case <-time.After(sttTimeout):
		return nil, fmt.Errorf("%w: stt connect", ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) onAudioIn(chunk []byte) {
	s.metrics.ObserveAudioLevel(s.level.Observe(chunk))
	s.mu.Lock()
	ch := s.sttAudio
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- chunk:
	case <-s.ctx.Done():
	}
}

func (s *Session) onControlIn(kind string) {
	if kind == "interrupt_signal" {
		s.interrupt()
	}
}


func (s *Session) onSTTEvent(text string, isFinal bool) error {
	if !isFinal {
		s.client.SendDroppable(transcriptFrame(text, false, "user"))
		return nil
	}

	trimmed := collapseWhitespace(text)
	if trimmed == "" {
		return nil
	}
	s.client.SendFinalTranscript(transcriptFrame(trimmed, true, "user"))
	s.handleFinal(trimmed)
	return nil
}


// handleFinal implements the regret/merge debounce algorithm: a final
// transcript arriving while a generation is in flight cancels it and
// merges into the committed text instead of starting a second reply.
func (s *Session) handleFinal(trimmed string) {
	if trimmed == "" {
		return
	}

	s.mu.Lock()
	s.cancelQuietTimerLocked()

	if s.state == StateGenerating {
		s.cancelActiveGenerationLocked()
		s.pendingText = joinSpace(s.lastCommitted, trimmed)
	} else {
		s.pendingText = joinSpace(s.pendingText, trimmed)
	}
	s.state = StateBuffering
	s.armQuietTimerLocked()
	s.mu.Unlock()
}


func (s *Session) armQuietTimerLocked() {
	s.quietEpoch++
	epoch := s.quietEpoch
	q := time.Duration(s.cfg.QuietPeriod) * time.Millisecond
	if q <= 0 {
		q = time.Second
	}
	s.quietTimer = time.AfterFunc(q, func() {
		s.onQuietTimerFire(epoch)
	})
}

// cancelQuietTimerLocked is idempotent: bumping the epoch invalidates
// any timer already in flight, regardless of whether Stop() wins the
// race against an already-firing timer.
func (s *Session) cancelQuietTimerLocked() {
	if s.quietTimer != nil {
		s.quietTimer.Stop()
		s.quietTimer = nil
	}
	s.quietEpoch++
}


func (s *Session) onQuietTimerFire(epoch int64) {
	s.mu.Lock()
	if epoch != s.quietEpoch {
		s.mu.Unlock()
		return
	}
	s.quietTimer = nil
	text := strings.TrimSpace(s.pendingText)
	s.pendingText = ""
	if text == "" {
		s.state = StateIdle
		s.mu.Unlock()
		return
	}

	s.metrics.QuietTimerFired()
	s.lastCommitted = text
	s.state = StateGenerating
	token := s.bumpTokenLocked()
	genCtx, cancel := context.WithCancel(s.ctx)
	s.genCancel = cancel
	s.mu.Unlock()

	s.metrics.GenerationStarted()
	go s.runGeneration(genCtx, token, text)
}


// interrupt handles an explicit interrupt_signal: bump the token, clear
// the buffer, cancel any quiet-timer, return to Idle. Performed
// unconditionally so repeated interrupts and interrupts while already
// Idle are no-ops.
func (s *Session) interrupt() {
	s.mu.Lock()
	s.bumpTokenLocked()
	s.pendingText = ""
	s.cancelQuietTimerLocked()
	cancel := s.genCancel
	s.genCancel = nil
	wasGenerating := s.state == StateGenerating
	s.state = StateIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasGenerating {
		s.metrics.GenerationCancelled()
		s.metrics.Interrupt()
	}
}

// cancelActiveGenerationLocked cancels the in-flight generation without
// forcing a state transition - the caller (handleFinal) immediately
// sets state to Buffering itself.
func (s *Session) cancelActiveGenerationLocked() {
	s.bumpTokenLocked()
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
	s.metrics.GenerationCancelled()
}

func (s *Session) bumpTokenLocked() GenerationToken {
	s.activeToken++
	return s.activeToken
}

func (s *Session) tokenActive(token GenerationToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeToken == token
}


// runGeneration streams LLM tokens under token, fans each out to the
// client and to a bounded TTS worker pool, and releases synthesized
// audio to the client in order via a reorder buffer scoped to this one
// generation.
func (s *Session) runGeneration(ctx context.Context, token GenerationToken, text string) {
	// The user turn is only committed to history alongside the
	// assistant turn on natural completion (chat_history.go's ack-seeded
	// Snapshot stays monotonic even across a cancelled generation), so
	// the message sent to the provider is built from a snapshot plus
	// this turn rather than from an early, possibly-undone Append.
	messages := append(s.history.Snapshot(), Message{Role: "user", Content: text})

	firstAudio := sync.Once{}
	started := time.Now()

	reorder := newTTSReorderBuffer(func(seq int, audio []byte) {
		if !s.tokenActive(token) {
			return
		}
		firstAudio.Do(func() {
			s.metrics.ObserveUtteranceToFirstAudio(time.Since(started))
		})
		s.client.SendDroppable(audioFrame(base64.StdEncoding.EncodeToString(audio)))
	})

	var assistantText strings.Builder
	var ttsWG sync.WaitGroup
	ttsSem := make(chan struct{}, maxInt(1, s.cfg.TTSWorkers))
	seq := 0

	llmTimeout := time.Duration(s.cfg.LLMTimeoutMS) * time.Millisecond
	llmCtx := ctx
	if llmTimeout > 0 {
		var llmCancel context.CancelFunc
		llmCtx, llmCancel = context.WithTimeout(ctx, llmTimeout)
		defer llmCancel()
	}

	llmErr := s.llm.StreamComplete(llmCtx, messages, func(tok string) error {
		if !s.tokenActive(token) {
			return errGenerationCancelled
		}
		assistantText.WriteString(tok)
		s.client.SendDroppable(transcriptFrame(tok, false, "ai"))

		mySeq := seq
		seq++
		ttsWG.Add(1)
		ttsSem <- struct{}{}
		go func(seqNum int, span string) {
			defer ttsWG.Done()
			defer func() { <-ttsSem }()
			s.synthesizeSpan(ctx, token, seqNum, span, reorder)
		}(mySeq, tok)
		return nil
	})

	ttsWG.Wait()

	if llmErr != nil {
		if errors.Is(llmErr, errGenerationCancelled) {
			s.finishGeneration(token)
			return
		}
		if llmCtx.Err() == context.DeadlineExceeded {
			llmErr = fmt.Errorf("%w: llm generation: %v", ErrTimeout, llmErr)
		}
		if s.tokenActive(token) {
			s.logger.Error("llm generation failed", "session_id", s.id, "error", llmErr)
			s.client.SendMustDeliver(errorFrame("language model generation failed"))
		}
		s.finishGeneration(token)
		return
	}

	if !s.tokenActive(token) {
		s.finishGeneration(token)
		return
	}

	s.history.Append("user", text)
	s.history.Append("assistant", assistantText.String())
	s.client.SendMustDeliver(responseCompleteFrame())
	s.metrics.GenerationCompleted()
	s.finishGeneration(token)
}

func (s *Session) synthesizeSpan(ctx context.Context, token GenerationToken, seq int, span string, reorder *ttsReorderBuffer) {
	ttsTimeout := time.Duration(s.cfg.TTSTimeoutMS) * time.Millisecond
	spanCtx := ctx
	if ttsTimeout > 0 {
		var cancel context.CancelFunc
		spanCtx, cancel = context.WithTimeout(ctx, ttsTimeout)
		defer cancel()
	}

	var buf bytes.Buffer
	err := s.tts.Synthesize(spanCtx, span, func(b []byte) error {
		buf.Write(b)
		return nil
	})
	if err != nil {
		if spanCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: tts synthesis: %v", ErrTimeout, err)
		}
		s.logger.Warn("tts synthesis failed", "session_id", s.id, "error", err)
		s.metrics.TTSSpanDropped()
		reorder.release(seq, nil)
		return
	}
	reorder.release(seq, buf.Bytes())
}


// finishGeneration returns the session to Idle only if nothing has
// superseded this token while the generation was running - a merge or
// interrupt already transitioned the state and must not be clobbered.
func (s *Session) finishGeneration(token GenerationToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeToken == token && s.state == StateGenerating {
		s.state = StateIdle
		s.genCancel = nil
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinSpace(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
