package alarm

import (
	"math"
	"sort"
)

// frequencyTolerance is the peak<->active-tone matching window (spec §4.3).
const frequencyTolerance = 50.0 // Hz

// activeTone tracks a currently-playing tone across chunks.
type activeTone struct {
	startTime     float64
	frequency     float64
	maxMagnitude  float64
	lastSeenTime  float64
	samplesCount  int
}

// EventGenerator turns a per-chunk stream of spectral Peaks into a
// chronologically-ordered stream of closed ToneEvents. Grounded on the
// Schmitt-trigger-plus-glitch-filter shape of nwpulei-cw's cluster_decoder.go
// (processSample/handleMarkEnd), generalized to the chunk-level, multi-tone,
// safe-release algorithm of the original Python generator.
type EventGenerator struct {
	sampleRate       float64
	chunkSize        int
	chunkDuration    float64
	minToneDuration  float64
	dropoutTolerance float64

	activeTones   []activeTone
	pendingOutput []ToneEvent
}

// NewEventGenerator builds a generator for chunkSize-sample chunks at
// sampleRate, using the given resolution thresholds.
func NewEventGenerator(sampleRate float64, chunkSize int, res ResolutionConfig) *EventGenerator {
	return &EventGenerator{
		sampleRate:       sampleRate,
		chunkSize:        chunkSize,
		chunkDuration:    float64(chunkSize) / sampleRate,
		minToneDuration:  res.MinToneDuration,
		dropoutTolerance: res.DropoutTolerance,
	}
}

// Process ingests one chunk's worth of (already frequency-filtered) peaks
// and the chunk's end timestamp, and returns any events now safe to
// release in non-decreasing timestamp order (spec §4.3).
func (g *EventGenerator) Process(peaks []Peak, timestamp float64) []ToneEvent {
	matched := make([]bool, len(g.activeTones))

	for _, peak := range peaks {
		idx := -1
		for i := range g.activeTones {
			if matched[i] {
				continue
			}
			if math.Abs(peak.Frequency-g.activeTones[i].frequency) < frequencyTolerance {
				idx = i
				break
			}
		}
		if idx >= 0 {
			t := &g.activeTones[idx]
			if peak.Magnitude > t.maxMagnitude {
				t.maxMagnitude = peak.Magnitude
			}
			t.lastSeenTime = timestamp
			t.samplesCount++
			matched[idx] = true
			continue
		}

		g.activeTones = append(g.activeTones, activeTone{
			startTime:    timestamp,
			frequency:    peak.Frequency,
			maxMagnitude: peak.Magnitude,
			lastSeenTime: timestamp,
			samplesCount: 1,
		})
		matched = append(matched, true)
	}

	var stillActive []activeTone
	var newEvents []ToneEvent
	for i, t := range g.activeTones {
		if matched[i] {
			stillActive = append(stillActive, t)
			continue
		}

		gap := timestamp - t.lastSeenTime
		if gap > g.dropoutTolerance {
			duration := float64(t.samplesCount) * g.chunkDuration
			if duration >= g.minToneDuration {
				newEvents = append(newEvents, ToneEvent{
					Timestamp:  t.startTime,
					Duration:   duration,
					Frequency:  t.frequency,
					Magnitude:  t.maxMagnitude,
					Confidence: 1.0,
				})
			}
		} else {
			stillActive = append(stillActive, t)
		}
	}
	g.activeTones = stillActive

	if len(newEvents) > 0 {
		g.pendingOutput = append(g.pendingOutput, newEvents...)
		sort.Slice(g.pendingOutput, func(a, b int) bool {
			return g.pendingOutput[a].Timestamp < g.pendingOutput[b].Timestamp
		})
	}

	ready := g.release()
	return coalesce(ready)
}

// release implements the safe-release rule: an event can only be emitted
// once no currently-active tone could still produce an event with an
// earlier start time (spec §4.3 step 4).
func (g *EventGenerator) release() []ToneEvent {
	if len(g.activeTones) == 0 {
		ready := g.pendingOutput
		g.pendingOutput = nil
		return ready
	}

	minActiveStart := g.activeTones[0].startTime
	for _, t := range g.activeTones[1:] {
		if t.startTime < minActiveStart {
			minActiveStart = t.startTime
		}
	}

	splitIdx := 0
	for i, e := range g.pendingOutput {
		if e.Timestamp < minActiveStart {
			splitIdx = i + 1
		} else {
			break
		}
	}
	if splitIdx == 0 {
		return nil
	}
	ready := g.pendingOutput[:splitIdx]
	g.pendingOutput = g.pendingOutput[splitIdx:]
	return ready
}

// coalesce merges adjacent events that overlap by more than 50% of the
// shorter duration, keeping the longer of the two (spec §4.3 step 5).
func coalesce(events []ToneEvent) []ToneEvent {
	if len(events) <= 1 {
		return events
	}

	out := make([]ToneEvent, 0, len(events))
	current := events[0]
	for _, next := range events[1:] {
		currentEnd := current.Timestamp + current.Duration
		nextEnd := next.Timestamp + next.Duration
		overlap := math.Min(currentEnd, nextEnd) - next.Timestamp
		if overlap < 0 {
			overlap = 0
		}
		minDur := math.Min(current.Duration, next.Duration)

		if overlap > 0.5*minDur {
			if next.Duration > current.Duration {
				current = next
			}
			continue
		}
		out = append(out, current)
		current = next
	}
	out = append(out, current)
	return out
}

// Flush treats every still-open active tone as closed now, at the given
// timestamp, and returns whatever becomes releasable. Used when a stream
// ends with tones still pending (spec §4.3 "Failure modes").
func (g *EventGenerator) Flush(timestamp float64) []ToneEvent {
	var closed []ToneEvent
	for _, t := range g.activeTones {
		duration := float64(t.samplesCount) * g.chunkDuration
		if duration >= g.minToneDuration {
			closed = append(closed, ToneEvent{
				Timestamp:  t.startTime,
				Duration:   duration,
				Frequency:  t.frequency,
				Magnitude:  t.maxMagnitude,
				Confidence: 1.0,
			})
		}
	}
	g.activeTones = nil

	if len(closed) > 0 {
		g.pendingOutput = append(g.pendingOutput, closed...)
		sort.Slice(g.pendingOutput, func(a, b int) bool {
			return g.pendingOutput[a].Timestamp < g.pendingOutput[b].Timestamp
		})
	}

	ready := g.pendingOutput
	g.pendingOutput = nil
	return coalesce(ready)
}
