package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/voicebridge/pkg/config"
	"github.com/lokutor-ai/voicebridge/pkg/metrics"
	"github.com/lokutor-ai/voicebridge/pkg/orchestrator"
	"github.com/lokutor-ai/voicebridge/pkg/prompts"
	llmProvider "github.com/lokutor-ai/voicebridge/pkg/providers/llm"
	sttProvider "github.com/lokutor-ai/voicebridge/pkg/providers/stt"
	ttsProvider "github.com/lokutor-ai/voicebridge/pkg/providers/tts"
)

// defaultReadHeaderTimeout guards the upgrade handshake against
// Slowloris-style stalled clients.
const defaultReadHeaderTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	orchLogger := orchestrator.NewSlogLogger(logger)
	met := metrics.New()

	stt, err := newSTTProvider(cfg)
	if err != nil {
		log.Fatal(err)
	}
	llm, err := newLLMProvider(cfg)
	if err != nil {
		log.Fatal(err)
	}
	tts, err := newTTSProvider(cfg)
	if err != nil {
		log.Fatal(err)
	}
	batchSTT := newBatchSTTProvider(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/transcribe", handleDebugTranscribe(batchSTT))
	mux.HandleFunc("/ws", handleWebSocket(cfg, orchLogger, met, stt, llm, tts))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleWebSocket(cfg config.Config, logger orchestrator.Logger, met orchestrator.Metrics, stt orchestrator.StreamingSTTProvider, llm orchestrator.LLMProvider, tts orchestrator.TTSProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		id := uuid.NewString()
		client := orchestrator.NewClientChannel(conn, logger, cfg.Orchestrator.OutboundQueueSize)
		sess := orchestrator.NewSession(id, client, stt, llm, tts, cfg.Orchestrator, logger, met, prompts.DefaultVoiceAssistant)

		if err := sess.Run(r.Context()); err != nil {
			logger.Warn("session ended", "id", id, "error", err)
		}
	}
}

// handleDebugTranscribe accepts a raw PCM/WAV upload and runs it
// through whichever batch STTProvider is configured, for comparing
// providers without a live session.
func handleDebugTranscribe(stt orchestrator.STTProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		const maxUpload = 25 << 20
		body := http.MaxBytesReader(w, r.Body, maxUpload)
		buf := make([]byte, 0, 1<<20)
		chunk := make([]byte, 32*1024)
		for {
			n, err := body.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if err != nil {
				break
			}
		}

		transcript, err := stt.Transcribe(r.Context(), buf)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"transcript": transcript})
	}
}

func newSTTProvider(cfg config.Config) (orchestrator.StreamingSTTProvider, error) {
	switch cfg.STTProvider {
	case "deepgram":
		fallthrough
	default:
		return sttProvider.NewDeepgramSTT(cfg.STTAPIKey), nil
	}
}

func newBatchSTTProvider(cfg config.Config) orchestrator.STTProvider {
	switch cfg.STTProvider {
	case "openai":
		return sttProvider.NewOpenAISTT(cfg.STTAPIKey, modelOr(cfg.STTModel, "whisper-1"))
	case "groq":
		return sttProvider.NewGroqSTT(cfg.STTAPIKey, modelOr(cfg.STTModel, "whisper-large-v3-turbo"))
	case "assemblyai":
		return sttProvider.NewAssemblyAISTT(cfg.STTAPIKey)
	case "deepgram":
		fallthrough
	default:
		return sttProvider.NewDeepgramSTT(cfg.STTAPIKey)
	}
}

func newLLMProvider(cfg config.Config) (orchestrator.LLMProvider, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return llmProvider.NewAnthropicLLM(cfg.LLMAPIKey, modelOr(cfg.LLMModel, "claude-3-5-sonnet-20241022")), nil
	case "openai":
		return llmProvider.NewOpenAILLM(cfg.LLMAPIKey, modelOr(cfg.LLMModel, "gpt-4o")), nil
	case "google":
		return llmProvider.NewGoogleLLM(context.Background(), cfg.LLMAPIKey, modelOr(cfg.LLMModel, "gemini-1.5-flash"))
	case "ollama":
		return llmProvider.NewOllamaLLM(os.Getenv("OLLAMA_HOST"), modelOr(cfg.LLMModel, "llama3"))
	case "groq":
		fallthrough
	default:
		return llmProvider.NewGroqLLM(cfg.LLMAPIKey, modelOr(cfg.LLMModel, "llama-3.3-70b-versatile")), nil
	}
}

func newTTSProvider(cfg config.Config) (orchestrator.TTSProvider, error) {
	switch cfg.TTSProvider {
	case "lokutor":
		return ttsProvider.NewLokutorTTS(cfg.TTSAPIKey), nil
	case "deepgram":
		fallthrough
	default:
		return ttsProvider.NewDeepgramTTS(cfg.TTSAPIKey), nil
	}
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
