package alarm

import "sort"

// windowConfig holds the per-profile sliding-window sizing derived once at
// construction (spec §4.4).
type windowConfig struct {
	windowDuration  float64
	evalFrequency   float64
	patternDuration float64
}

// WindowedMatcher evaluates buffered ToneEvents against a set of profiles
// on a periodic cadence, searching for the best-fitting run of cycles
// anywhere inside a trailing window rather than tracking sequential state.
// Grounded on the original Python WindowedMatcher; the buffering shape
// reuses nwpulei-cw's decoder.go ring-buffer idiom via EventBuffer.
type WindowedMatcher struct {
	profiles []AlarmProfile
	buffer   *EventBuffer

	configs       map[string]windowConfig
	lastEvalTime  map[string]float64
	lastMatchTime map[string]float64
}

// NewWindowedMatcher builds a matcher for the given profiles, computing
// each one's window configuration up front.
func NewWindowedMatcher(profiles []AlarmProfile) *WindowedMatcher {
	m := &WindowedMatcher{
		profiles:      profiles,
		buffer:        NewEventBuffer(),
		configs:       make(map[string]windowConfig, len(profiles)),
		lastEvalTime:  make(map[string]float64, len(profiles)),
		lastMatchTime: make(map[string]float64, len(profiles)),
	}
	for _, p := range profiles {
		m.configs[p.Name] = computeWindowConfig(p)
		m.lastEvalTime[p.Name] = 0.0
		m.lastMatchTime[p.Name] = -999.0
	}
	return m
}

// computeWindowConfig derives window_duration/eval_frequency/pattern_duration
// from a profile's segments, honoring explicit overrides (spec §4.4).
func computeWindowConfig(p AlarmProfile) windowConfig {
	patternDuration := 0.0
	for _, seg := range p.Segments {
		patternDuration += (seg.Duration.Min + seg.Duration.Max) / 2
	}

	minWindow := patternDuration * float64(p.ConfirmationCycles)

	windowDuration := p.WindowDuration
	if windowDuration == 0 {
		windowDuration = minWindow * 1.5
	}

	evalFrequency := p.EvalFrequency
	if evalFrequency == 0 {
		evalFrequency = patternDuration / 4
		if evalFrequency > 0.5 {
			evalFrequency = 0.5
		}
	}

	return windowConfig{
		windowDuration:  windowDuration,
		evalFrequency:   evalFrequency,
		patternDuration: patternDuration,
	}
}

// AddEvent buffers a newly-closed ToneEvent for later window evaluation.
func (m *WindowedMatcher) AddEvent(e ToneEvent) {
	m.buffer.Add(e)
}

// Evaluate checks every profile whose eval_frequency interval has elapsed
// since its last check, and returns any PatternMatchEvents found.
func (m *WindowedMatcher) Evaluate(currentTime float64) []PatternMatchEvent {
	var matches []PatternMatchEvent

	for _, p := range m.profiles {
		cfg := m.configs[p.Name]
		if currentTime-m.lastEvalTime[p.Name] < cfg.evalFrequency {
			continue
		}
		m.lastEvalTime[p.Name] = currentTime

		windowEvents := m.buffer.GetWindow(currentTime, cfg.windowDuration)
		if len(windowEvents) == 0 {
			continue
		}

		if match := m.matchPatternInWindow(windowEvents, p, currentTime); match != nil {
			matches = append(matches, *match)
		}
	}

	return matches
}

// matchPatternInWindow filters events to the profile's frequency ranges,
// tries every possible starting index, and keeps the best cycle count
// found anywhere in the window (spec §4.4 step 2-3).
func (m *WindowedMatcher) matchPatternInWindow(events []ToneEvent, p AlarmProfile, currentTime float64) *PatternMatchEvent {
	cfg := m.configs[p.Name]

	toneSegs := p.ToneSegments()
	if len(toneSegs) == 0 {
		return nil
	}

	var relevant []ToneEvent
	for _, e := range events {
		for _, seg := range toneSegs {
			if seg.Frequency.Contains(e.Frequency) {
				relevant = append(relevant, e)
				break
			}
		}
	}
	if len(relevant) == 0 {
		return nil
	}

	sort.Slice(relevant, func(a, b int) bool { return relevant[a].Timestamp < relevant[b].Timestamp })

	bestCycles := 0
	for start := 0; start < len(relevant); start++ {
		cycles := countPatternCycles(relevant[start:], p)
		if cycles > bestCycles {
			bestCycles = cycles
		}
	}

	if bestCycles < p.ConfirmationCycles {
		return nil
	}

	if currentTime-m.lastMatchTime[p.Name] < cfg.patternDuration {
		return nil
	}
	m.lastMatchTime[p.Name] = currentTime

	return &PatternMatchEvent{
		Timestamp:   currentTime,
		Duration:    cfg.patternDuration * float64(bestCycles),
		ProfileName: p.Name,
		CycleCount:  bestCycles,
	}
}

// countPatternCycles walks events against the profile's tone/silence
// sequence from the start, with asymmetric duration/gap tolerances (tone
// duration within [0.5*min, 1.5*max], silence gap within [0.5*min, 2*max]),
// and returns the number of complete cycles matched (spec §4.4 step 3).
func countPatternCycles(events []ToneEvent, p AlarmProfile) int {
	if len(events) == 0 {
		return 0
	}

	toneSegs := p.ToneSegments()
	silenceSegs := p.SilenceSegments()
	if len(toneSegs) == 0 {
		return 0
	}

	cycleCount := 0
	eventIdx := 0

	for eventIdx < len(events) {
		cycleMatched := true

		for segIdx, toneSeg := range toneSegs {
			if eventIdx >= len(events) {
				cycleMatched = false
				break
			}

			event := events[eventIdx]

			if !toneSeg.Frequency.Contains(event.Frequency) {
				cycleMatched = false
				break
			}

			if !toneSeg.Duration.Contains(event.Duration) {
				durMin := toneSeg.Duration.Min * 0.5
				durMax := toneSeg.Duration.Max * 1.5
				if !(durMin <= event.Duration && event.Duration <= durMax) {
					cycleMatched = false
					break
				}
			}

			if segIdx < len(toneSegs)-1 && eventIdx+1 < len(events) {
				nextEvent := events[eventIdx+1]
				gap := nextEvent.Timestamp - (event.Timestamp + event.Duration)

				if segIdx < len(silenceSegs) {
					silenceSeg := silenceSegs[segIdx]
					gapMin := silenceSeg.Duration.Min * 0.5
					gapMax := silenceSeg.Duration.Max * 2.0
					if !(gapMin <= gap && gap <= gapMax) {
						cycleMatched = false
						break
					}
				}
			}

			eventIdx++
		}

		if cycleMatched {
			cycleCount++
		} else {
			break
		}
	}

	return cycleCount
}

// Reset clears all buffered events and per-profile evaluation state.
func (m *WindowedMatcher) Reset() {
	m.buffer.Clear()
	for name := range m.lastEvalTime {
		m.lastEvalTime[name] = 0.0
		m.lastMatchTime[name] = -999.0
	}
}
