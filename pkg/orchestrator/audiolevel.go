package orchestrator

import "math"

// AudioLevelMeter reports the RMS level of incoming PCM for metrics
// only. It does not decide anything about speech start/end or
// barge-in: the only interruption signals are a new STT final and an
// explicit interrupt_signal, never acoustic energy alone. Adapted from
// an RMS voice-activity calculation, stripped of its speaking/silence
// state machine.
type AudioLevelMeter struct {
	last float64
}

func NewAudioLevelMeter() *AudioLevelMeter {
	return &AudioLevelMeter{}
}

// Observe computes the RMS of a little-endian 16-bit PCM chunk and
// returns it, normalized to [0,1].
func (m *AudioLevelMeter) Observe(chunk []byte) float64 {
	if len(chunk) < 2 {
		return m.last
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	m.last = math.Sqrt(sum / float64(n))
	return m.last
}
