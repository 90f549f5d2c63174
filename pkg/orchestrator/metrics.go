package orchestrator

import "time"

// Metrics is the seam a Session reports through. The production
// implementation in pkg/metrics backs it with Prometheus collectors;
// tests use NoOpMetrics.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	GenerationStarted()
	GenerationCancelled()
	GenerationCompleted()
	QuietTimerFired()
	TTSSpanDropped()
	Interrupt()
	ObserveUtteranceToFirstAudio(d time.Duration)
	ObserveAudioLevel(level float64)
}

type NoOpMetrics struct{}

func (NoOpMetrics) SessionOpened()                                 {}
func (NoOpMetrics) SessionClosed()                                  {}
func (NoOpMetrics) GenerationStarted()                              {}
func (NoOpMetrics) GenerationCancelled()                             {}
func (NoOpMetrics) GenerationCompleted()                            {}
func (NoOpMetrics) QuietTimerFired()                                 {}
func (NoOpMetrics) TTSSpanDropped()                                  {}
func (NoOpMetrics) Interrupt()                                       {}
func (NoOpMetrics) ObserveUtteranceToFirstAudio(d time.Duration)     {}
func (NoOpMetrics) ObserveAudioLevel(level float64)                  {}
