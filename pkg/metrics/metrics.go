// Package metrics wires session-level events to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lokutor-ai/voicebridge/pkg/orchestrator"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_sessions_opened_total",
		Help: "Total client sessions opened",
	})
	sessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_sessions_closed_total",
		Help: "Total client sessions closed",
	})
	generationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_generations_started_total",
		Help: "Total generations started by the quiet-timer",
	})
	generationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_generations_cancelled_total",
		Help: "Total generations cancelled by a merge or interrupt",
	})
	generationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_generations_completed_total",
		Help: "Total generations that reached response_complete",
	})
	quietTimerFires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_quiet_timer_fires_total",
		Help: "Total quiet-timer firings that promoted buffered text",
	})
	ttsSpansDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_tts_spans_dropped_total",
		Help: "Total TTS spans that failed synthesis and were dropped",
	})
	interrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_interrupts_total",
		Help: "Total explicit interrupt_signal frames that cancelled an in-flight generation",
	})
	utteranceToFirstAudio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicebridge_utterance_to_first_audio_ms",
		Help:    "Latency from committed utterance to first audio frame sent",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})
	audioLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicebridge_audio_level_rms",
		Help: "Most recently observed RMS level of inbound PCM, normalized to [0,1]",
	})
)

// Prometheus implements orchestrator.Metrics on the package-level
// collectors above. All instances share the same registered series;
// the type exists only to satisfy the interface at call sites.
type Prometheus struct{}

func New() Prometheus { return Prometheus{} }

func (Prometheus) SessionOpened()        { sessionsOpened.Inc() }
func (Prometheus) SessionClosed()        { sessionsClosed.Inc() }
func (Prometheus) GenerationStarted()    { generationsStarted.Inc() }
func (Prometheus) GenerationCancelled()  { generationsCancelled.Inc() }
func (Prometheus) GenerationCompleted()  { generationsCompleted.Inc() }
func (Prometheus) QuietTimerFired()      { quietTimerFires.Inc() }
func (Prometheus) TTSSpanDropped()       { ttsSpansDropped.Inc() }
func (Prometheus) Interrupt()            { interrupts.Inc() }
func (Prometheus) ObserveUtteranceToFirstAudio(d time.Duration) {
	utteranceToFirstAudio.Observe(float64(d.Milliseconds()))
}
func (Prometheus) ObserveAudioLevel(level float64) { audioLevel.Set(level) }

var _ orchestrator.Metrics = Prometheus{}
