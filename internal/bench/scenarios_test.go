// Package bench runs the end-to-end scenarios from spec.md §8 (E1-E6)
// against a real Engine, synthesizing PCM16 chunks the way
// nwpulei-cw/PitchDetector_test.go synthesizes its test tones. Tones are
// clean sines; E4 uses white noise and E5 prefixes random beeps.
package bench

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alarm "alarmwatch"
)

const (
	sampleRate = 44100.0
	chunkSize  = 1024
	amplitude  = 0.5
)

// chunksFromSamples splits a flat sample stream into fixed-size PCM16
// chunks, zero-padding the final partial chunk.
func chunksFromSamples(samples []int16) [][]int16 {
	var chunks [][]int16
	for i := 0; i < len(samples); i += chunkSize {
		end := i + chunkSize
		if end > len(samples) {
			padded := make([]int16, chunkSize)
			copy(padded, samples[i:])
			chunks = append(chunks, padded)
			break
		}
		chunks = append(chunks, samples[i:end])
	}
	return chunks
}

func toneSamples(freq, seconds float64) []int16 {
	n := int(seconds * sampleRate)
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

func silenceSamples(seconds float64) []int16 {
	return make([]int16, int(seconds*sampleRate))
}

func randomBeepSamples(seconds float64, rng *rand.Rand) []int16 {
	n := int(seconds * sampleRate)
	out := make([]int16, n)
	freq := 800 + rng.Float64()*2000
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

func t3Profile(t *testing.T) alarm.AlarmProfile {
	t.Helper()
	segs := []alarm.Segment{
		alarm.Tone(alarm.Range{Min: 2900, Max: 3100}, alarm.Range{Min: 0.4, Max: 0.6}, 0),
		alarm.Silence(alarm.Range{Min: 0.4, Max: 0.6}),
	}
	p, err := alarm.NewAlarmProfile("T3", segs, func(p *alarm.AlarmProfile) { p.ConfirmationCycles = 2 })
	require.NoError(t, err)
	return p
}

func runScenario(profile alarm.AlarmProfile, samples []int16) []alarm.PatternMatchEvent {
	var matches []alarm.PatternMatchEvent
	sink := alarm.Sink{OnMatch: func(m alarm.PatternMatchEvent) { matches = append(matches, m) }}

	config := alarm.AudioConfig{SampleRate: sampleRate, ChunkSize: chunkSize}
	engine := alarm.NewEngine([]alarm.AlarmProfile{profile}, config, sink)

	for _, chunk := range chunksFromSamples(samples) {
		engine.ProcessChunk(chunk)
	}
	engine.Flush()
	return matches
}

// E1: 3 cycles of (3000Hz tone 0.5s + silence 0.5s), repeated 3 times with
// 1.5s silence between repeats, against T3 (conf_cycles=2) -> at least one match.
func TestScenarioE1RepeatingToneMatches(t *testing.T) {
	var samples []int16
	for repeat := 0; repeat < 3; repeat++ {
		for cycle := 0; cycle < 3; cycle++ {
			samples = append(samples, toneSamples(3000, 0.5)...)
			samples = append(samples, silenceSamples(0.5)...)
		}
		samples = append(samples, silenceSamples(1.5)...)
	}

	matches := runScenario(t3Profile(t), samples)
	assert.NotEmpty(t, matches)
}

// E2: same timing as E1 but at 1500Hz, outside T3's frequency range -> zero matches.
func TestScenarioE2WrongFrequencyNoMatch(t *testing.T) {
	var samples []int16
	for repeat := 0; repeat < 3; repeat++ {
		for cycle := 0; cycle < 3; cycle++ {
			samples = append(samples, toneSamples(1500, 0.5)...)
			samples = append(samples, silenceSamples(0.5)...)
		}
		samples = append(samples, silenceSamples(1.5)...)
	}

	matches := runScenario(t3Profile(t), samples)
	assert.Empty(t, matches)
}

// E3: same timing as E1 but tone duration 0.2s, outside T3's 0.4-0.6s
// duration range -> zero matches.
func TestScenarioE3WrongDurationNoMatch(t *testing.T) {
	var samples []int16
	for repeat := 0; repeat < 3; repeat++ {
		for cycle := 0; cycle < 3; cycle++ {
			samples = append(samples, toneSamples(3000, 0.2)...)
			samples = append(samples, silenceSamples(0.8)...)
		}
		samples = append(samples, silenceSamples(1.5)...)
	}

	matches := runScenario(t3Profile(t), samples)
	assert.Empty(t, matches)
}

// E4: pure white noise for 5s -> zero matches.
func TestScenarioE4WhiteNoiseNoMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := int(5 * sampleRate)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(rng.Float64()*2*amplitude*32767 - amplitude*32767)
	}

	matches := runScenario(t3Profile(t), samples)
	assert.Empty(t, matches)
}

// E5: E1 prefixed with 1.0s of 3050Hz tone + 0.2s of random beeps -> still
// at least one match (leading noise immunity).
func TestScenarioE5LeadingNoiseImmunity(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	var samples []int16
	samples = append(samples, toneSamples(3050, 1.0)...)
	samples = append(samples, randomBeepSamples(0.2, rng)...)

	for repeat := 0; repeat < 3; repeat++ {
		for cycle := 0; cycle < 3; cycle++ {
			samples = append(samples, toneSamples(3000, 0.5)...)
			samples = append(samples, silenceSamples(0.5)...)
		}
		samples = append(samples, silenceSamples(1.5)...)
	}

	matches := runScenario(t3Profile(t), samples)
	assert.NotEmpty(t, matches)
}

// E6: fast T4 pattern (4 * (0.05s tone + 0.05s silence) + 2.0s silence, x3)
// against a profile tuned with min_tone_duration=0.03, dropout_tolerance=0.03.
func TestScenarioE6FastPatternMatches(t *testing.T) {
	segs := []alarm.Segment{
		alarm.Tone(alarm.Range{Min: 2900, Max: 3100}, alarm.Range{Min: 0.03, Max: 0.08}, 0),
		alarm.Silence(alarm.Range{Min: 0.03, Max: 0.08}),
	}
	resolution := alarm.ResolutionConfig{MinToneDuration: 0.03, DropoutTolerance: 0.03}
	profile, err := alarm.NewAlarmProfile("T4-fast", segs, func(p *alarm.AlarmProfile) {
		p.ConfirmationCycles = 3
		p.Resolution = &resolution
	})
	require.NoError(t, err)

	var samples []int16
	for repeat := 0; repeat < 3; repeat++ {
		for cycle := 0; cycle < 4; cycle++ {
			samples = append(samples, toneSamples(3000, 0.05)...)
			samples = append(samples, silenceSamples(0.05)...)
		}
		samples = append(samples, silenceSamples(2.0)...)
	}

	matches := runScenario(profile, samples)
	assert.NotEmpty(t, matches)
}
