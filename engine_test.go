package alarm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// beepChunks builds a chunk_size-aligned stream of tone/silence
// chunks for the given profile-like cadence, reusing the sine generator
// from spectral_monitor_test.go.
func beepChunks(freq, sampleRate float64, chunkSize int, toneChunks, silenceChunks, cycles int) [][]int16 {
	var chunks [][]int16
	for c := 0; c < cycles; c++ {
		for i := 0; i < toneChunks; i++ {
			chunks = append(chunks, generateSineWave(freq, sampleRate, chunkSize, 0.8))
		}
		for i := 0; i < silenceChunks; i++ {
			chunks = append(chunks, make([]int16, chunkSize))
		}
	}
	return chunks
}

func TestEngineDetectsRepeatingBeepPattern(t *testing.T) {
	segs := []Segment{
		Tone(Range{Min: 3000, Max: 3200}, Range{Min: 0.2, Max: 0.5}, 0),
		Silence(Range{Min: 0.2, Max: 0.5}),
	}
	profile, err := NewAlarmProfile("smoke", segs, func(p *AlarmProfile) {
		p.ConfirmationCycles = 3
		p.Resolution = &ResolutionConfig{MinToneDuration: 0.05, DropoutTolerance: 0.05}
	})
	require.NoError(t, err)

	var detections []string
	sink := Sink{OnDetection: func(name string) { detections = append(detections, name) }}

	config := AudioConfig{SampleRate: 16000, ChunkSize: 2048} // ~0.128s/chunk
	engine := NewEngine([]AlarmProfile{profile}, config, sink)

	// ~0.256s tone, ~0.256s silence, repeated 4 times.
	chunks := beepChunks(3100, 16000, 2048, 2, 2, 4)
	for _, c := range chunks {
		engine.ProcessChunk(c)
	}
	engine.Flush()

	assert.Contains(t, detections, "smoke")
}

func TestEngineCallbackPanicDoesNotStopPipeline(t *testing.T) {
	segs := []Segment{Tone(Range{Min: 3000, Max: 3200}, Range{Min: 0.05, Max: 0.3}, 0)}
	profile, err := NewAlarmProfile("panicky", segs, func(p *AlarmProfile) {
		p.ConfirmationCycles = 1
		p.Resolution = &ResolutionConfig{MinToneDuration: 0.02, DropoutTolerance: 0.05}
	})
	require.NoError(t, err)

	calls := 0
	sink := Sink{OnDetection: func(name string) {
		calls++
		panic("sink exploded")
	}}

	config := AudioConfig{SampleRate: 16000, ChunkSize: 1024}
	engine := NewEngine([]AlarmProfile{profile}, config, sink)

	chunks := beepChunks(3100, 16000, 1024, 4, 4, 2)
	assert.NotPanics(t, func() {
		for _, c := range chunks {
			engine.ProcessChunk(c)
		}
		engine.Flush()
	})
	assert.Greater(t, calls, 0)
}

func TestEngineAutoClearsAlarmAfterResetTimeout(t *testing.T) {
	segs := []Segment{Tone(Range{Min: 3000, Max: 3200}, Range{Min: 0.02, Max: 0.2}, 0)}
	profile, err := NewAlarmProfile("quick", segs, func(p *AlarmProfile) {
		p.ConfirmationCycles = 1
		p.ResetTimeout = 0.5
		p.Resolution = &ResolutionConfig{MinToneDuration: 0.02, DropoutTolerance: 0.05}
	})
	require.NoError(t, err)

	config := AudioConfig{SampleRate: 16000, ChunkSize: 1024}
	engine := NewEngine([]AlarmProfile{profile}, config, Sink{})

	chunks := beepChunks(3100, 16000, 1024, 4, 4, 1)
	for _, c := range chunks {
		engine.ProcessChunk(c)
	}
	require.True(t, engine.AlarmActive())

	// Feed enough silent chunks to advance past reset_timeout (0.5s).
	silence := make([]int16, 1024)
	steps := int(math.Ceil(0.6 / (1024.0 / 16000.0)))
	for i := 0; i < steps; i++ {
		engine.ProcessChunk(silence)
	}

	assert.False(t, engine.AlarmActive())
}
