package alarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolution() ResolutionConfig {
	return ResolutionConfig{MinToneDuration: 0.10, DropoutTolerance: 0.15}
}

// chunkDuration for a 4096-sample chunk at 16kHz.
const testChunkDuration = 4096.0 / 16000.0

func TestEventGeneratorClosesToneAfterDropout(t *testing.T) {
	g := NewEventGenerator(16000, 4096, testResolution())

	var t0 float64
	var events []ToneEvent
	for i := 0; i < 5; i++ {
		t0 += testChunkDuration
		events = append(events, g.Process([]Peak{{Frequency: 3100, Magnitude: 1.0}}, t0)...)
	}
	assert.Empty(t, events, "tone still active, nothing should release yet")

	// Dropout: no matching peak for longer than dropoutTolerance.
	for i := 0; i < 5; i++ {
		t0 += testChunkDuration
		events = append(events, g.Process(nil, t0)...)
	}

	require.Len(t, events, 1)
	assert.InDelta(t, 3100, events[0].Frequency, 0.01)
	assert.True(t, events[0].Duration >= testResolution().MinToneDuration)
}

func TestEventGeneratorDropsToneShorterThanMinimum(t *testing.T) {
	g := NewEventGenerator(16000, 4096, testResolution())

	var t0 float64
	t0 += testChunkDuration
	g.Process([]Peak{{Frequency: 3100, Magnitude: 1.0}}, t0)

	// Immediately drop out, with a single chunk of "on" time — below
	// min_tone_duration (0.10s) at this chunk rate (~0.256s/chunk is
	// already above it, so use a tighter resolution to force the case).
	shortRes := ResolutionConfig{MinToneDuration: 1.0, DropoutTolerance: 0.15}
	g2 := NewEventGenerator(16000, 4096, shortRes)
	t0 = 0
	t0 += testChunkDuration
	g2.Process([]Peak{{Frequency: 3100, Magnitude: 1.0}}, t0)

	var events []ToneEvent
	for i := 0; i < 3; i++ {
		t0 += testChunkDuration
		events = append(events, g2.Process(nil, t0)...)
	}
	assert.Empty(t, events, "sub-minimum tone should be discarded, not emitted")
	_ = g
}

func TestEventGeneratorBridgesShortDropout(t *testing.T) {
	g := NewEventGenerator(16000, 4096, testResolution())

	var t0 float64
	for i := 0; i < 3; i++ {
		t0 += testChunkDuration
		g.Process([]Peak{{Frequency: 3100, Magnitude: 1.0}}, t0)
	}

	// One silent chunk (~0.256s) exceeds dropoutTolerance (0.15s) at this
	// chunk rate, so use a generator with a larger tolerance to exercise
	// genuine bridging within a single chunk gap.
	bridging := NewEventGenerator(16000, 4096, ResolutionConfig{MinToneDuration: 0.1, DropoutTolerance: 0.3})
	t0 = 0
	for i := 0; i < 3; i++ {
		t0 += testChunkDuration
		bridging.Process([]Peak{{Frequency: 3100, Magnitude: 1.0}}, t0)
	}
	t0 += testChunkDuration
	events := bridging.Process(nil, t0) // gap ~0.256s < 0.3s tolerance: bridged, not closed
	assert.Empty(t, events)

	t0 += testChunkDuration
	events = bridging.Process([]Peak{{Frequency: 3100, Magnitude: 1.0}}, t0)
	assert.Empty(t, events, "tone should still be open, continuity preserved across the dropout")
}

func TestEventGeneratorFlushClosesOpenTones(t *testing.T) {
	g := NewEventGenerator(16000, 4096, testResolution())

	var t0 float64
	for i := 0; i < 3; i++ {
		t0 += testChunkDuration
		g.Process([]Peak{{Frequency: 3100, Magnitude: 1.0}}, t0)
	}

	events := g.Flush(t0 + testChunkDuration)
	require.Len(t, events, 1)
	assert.InDelta(t, 3100, events[0].Frequency, 0.01)
}

func TestCoalesceMergesHighOverlap(t *testing.T) {
	events := []ToneEvent{
		{Timestamp: 0, Duration: 1.0, Frequency: 3100},
		{Timestamp: 0.6, Duration: 1.0, Frequency: 3100}, // 0.4s overlap of a 1.0s min duration: 40% < 50%, not merged
	}
	out := coalesce(events)
	assert.Len(t, out, 2)

	overlapping := []ToneEvent{
		{Timestamp: 0, Duration: 1.0, Frequency: 3100},
		{Timestamp: 0.4, Duration: 1.0, Frequency: 3100}, // 0.6s overlap of 1.0s min: 60% >= 50%, merged
	}
	out = coalesce(overlapping)
	require.Len(t, out, 1)
}

func TestEventGeneratorReleaseIsChronological(t *testing.T) {
	g := NewEventGenerator(16000, 4096, ResolutionConfig{MinToneDuration: 0.01, DropoutTolerance: 0.01})

	var t0 float64
	var all []ToneEvent

	// Two tones at different frequencies overlapping in time, closed in
	// different chunks; output must never regress in timestamp.
	t0 += testChunkDuration
	all = append(all, g.Process([]Peak{{Frequency: 1000, Magnitude: 1.0}}, t0)...)
	t0 += testChunkDuration
	all = append(all, g.Process([]Peak{{Frequency: 1000, Magnitude: 1.0}, {Frequency: 2000, Magnitude: 1.0}}, t0)...)
	t0 += testChunkDuration
	all = append(all, g.Process([]Peak{{Frequency: 2000, Magnitude: 1.0}}, t0)...)
	t0 += testChunkDuration
	all = append(all, g.Process(nil, t0)...)
	t0 += testChunkDuration
	all = append(all, g.Process(nil, t0)...)
	all = append(all, g.Flush(t0+testChunkDuration)...)

	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Timestamp, all[i].Timestamp, "events must release in non-decreasing timestamp order")
	}
}
