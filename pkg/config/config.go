// Package config loads server configuration from the environment,
// with a .env file as an optional local-development overlay.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lokutor-ai/voicebridge/pkg/orchestrator"
)

type Config struct {
	ListenAddr string

	STTProvider string
	LLMProvider string
	TTSProvider string

	STTAPIKey string
	LLMAPIKey string
	TTSAPIKey string

	STTModel string
	LLMModel string

	Orchestrator orchestrator.Config
}

// Load reads a .env file if present, then layers environment variables
// over built-in defaults. Required keys missing at the end of loading
// are reported as a single wrapped ErrConfigError.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", "0.0.0.0:3000")
	v.SetDefault("stt_provider", "deepgram")
	v.SetDefault("llm_provider", "groq")
	v.SetDefault("tts_provider", "deepgram")
	v.SetDefault("quiet_ms", 1000)
	v.SetDefault("max_context_messages", 40)
	v.SetDefault("stt_timeout_ms", 10_000)
	v.SetDefault("llm_timeout_ms", 20_000)
	v.SetDefault("tts_timeout_ms", 10_000)
	v.SetDefault("tts_workers", 4)
	v.SetDefault("outbound_queue_size", 256)

	for _, key := range []string{
		"listen_addr", "stt_provider", "llm_provider", "tts_provider",
		"stt_api_key", "llm_api_key", "tts_api_key", "stt_model", "llm_model",
		"quiet_ms", "max_context_messages", "stt_timeout_ms", "llm_timeout_ms",
		"tts_timeout_ms", "tts_workers", "outbound_queue_size",
	} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	cfg := Config{
		ListenAddr:  v.GetString("listen_addr"),
		STTProvider: v.GetString("stt_provider"),
		LLMProvider: v.GetString("llm_provider"),
		TTSProvider: v.GetString("tts_provider"),
		STTAPIKey:   v.GetString("stt_api_key"),
		LLMAPIKey:   v.GetString("llm_api_key"),
		TTSAPIKey:   v.GetString("tts_api_key"),
		STTModel:    v.GetString("stt_model"),
		LLMModel:    v.GetString("llm_model"),
		Orchestrator: orchestrator.Config{
			QuietPeriod:        v.GetInt("quiet_ms"),
			MaxContextMessages: v.GetInt("max_context_messages"),
			STTTimeoutMS:       v.GetInt("stt_timeout_ms"),
			LLMTimeoutMS:       v.GetInt("llm_timeout_ms"),
			TTSTimeoutMS:       v.GetInt("tts_timeout_ms"),
			TTSWorkers:         v.GetInt("tts_workers"),
			OutboundQueueSize:  v.GetInt("outbound_queue_size"),
		},
	}

	var missing []string
	if cfg.STTAPIKey == "" {
		missing = append(missing, "STT_API_KEY")
	}
	if cfg.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if cfg.TTSAPIKey == "" {
		missing = append(missing, "TTS_API_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing required environment variables: %s", orchestrator.ErrConfigError, strings.Join(missing, ", "))
	}

	return cfg, nil
}
