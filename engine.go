package alarm

// defaultMinMagnitude is the absolute magnitude floor passed to every
// SpectralMonitor (spec §4.1 step 5); noise-floor-relative thresholding
// does the rest of the work, but this keeps near-silent chunks from ever
// producing a peak.
const defaultMinMagnitude = 0.1

// AudioConfig describes the capture format the pipeline expects.
type AudioConfig struct {
	SampleRate float64
	ChunkSize  int
}

// DefaultAudioConfig matches the standard resolution preset's assumptions
// (16kHz, 4096-sample chunks).
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{SampleRate: 16000, ChunkSize: 4096}
}

// Sink receives detection callbacks from an Engine. Either method may be
// left nil; Engine guards both calls so a nil or panicking Sink can never
// take down the pipeline (spec §7 CallbackError).
type Sink struct {
	OnDetection func(profileName string)
	OnMatch     func(PatternMatchEvent)
}

// Engine orchestrates the full pipeline: SpectralMonitor -> FrequencyFilter
// -> EventGenerator -> EventBuffer/WindowedMatcher -> Sink callbacks.
// Grounded on nwpulei-cw's CWSystem (system.go) for the façade shape, and
// on the original Python Engine.process_chunk for the wiring order and the
// "lazy" alarm auto-clear design recommended by spec §9 (no background
// timer goroutine: the reset is evaluated the next time a chunk arrives).
type Engine struct {
	config   AudioConfig
	profiles []AlarmProfile

	dsp       *SpectralMonitor
	freqFilt  *FrequencyFilter
	generator *EventGenerator
	matcher   *WindowedMatcher

	sink Sink

	currentTime  float64
	alarmActive  bool
	alarmSetTime float64
	resetTimeout float64
}

// NewEngine builds an Engine for the given profiles and audio format,
// selecting the finest resolution (shortest min-tone-duration and
// dropout-tolerance) across all profiles and the longest reset_timeout to
// govern the shared auto-clear window.
func NewEngine(profiles []AlarmProfile, config AudioConfig, sink Sink) *Engine {
	resolution := ComputeFinestResolution(profiles)

	resetTimeout := 0.0
	for _, p := range profiles {
		if p.ResetTimeout > resetTimeout {
			resetTimeout = p.ResetTimeout
		}
	}
	if resetTimeout == 0 {
		resetTimeout = 10.0
	}

	Logger.Info("engine initialized", "profiles", len(profiles), "min_tone_duration", resolution.MinToneDuration, "dropout_tolerance", resolution.DropoutTolerance)

	return &Engine{
		config:       config,
		profiles:     profiles,
		dsp:          NewSpectralMonitor(config.SampleRate, config.ChunkSize, defaultMinMagnitude),
		freqFilt:     NewFrequencyFilter(profiles),
		generator:    NewEventGenerator(config.SampleRate, config.ChunkSize, resolution),
		matcher:      NewWindowedMatcher(profiles),
		sink:         sink,
		resetTimeout: resetTimeout,
	}
}

// ProcessChunk runs one chunk of PCM16 samples through the full pipeline
// and reports whether an alarm transitioned to active during this call.
func (e *Engine) ProcessChunk(chunk []int16) bool {
	chunkDuration := float64(e.config.ChunkSize) / e.config.SampleRate
	e.currentTime += chunkDuration

	e.maybeAutoClear()

	peaks := e.dsp.Process(chunk)
	filtered := e.freqFilt.FilterPeaks(peaks)
	events := e.generator.Process(filtered, e.currentTime)

	for _, ev := range events {
		e.matcher.AddEvent(ev)
	}

	detected := false
	for _, match := range e.matcher.Evaluate(e.currentTime) {
		if e.triggerAlarm(match) {
			detected = true
		}
	}

	return detected
}

// maybeAutoClear implements the lazy reset: rather than spawning a timer
// goroutine per alarm, the next chunk to arrive after resetTimeout has
// elapsed since alarmSetTime clears the flag itself.
func (e *Engine) maybeAutoClear() {
	if e.alarmActive && e.currentTime-e.alarmSetTime >= e.resetTimeout {
		Logger.Info("auto-clearing alarm state")
		e.alarmActive = false
	}
}

// triggerAlarm fires callbacks for a newly-seen match, but only transitions
// alarmActive (and therefore only fires callbacks) on the rising edge.
func (e *Engine) triggerAlarm(match PatternMatchEvent) bool {
	Logger.Info("pattern matched", "profile", match.ProfileName, "cycles", match.CycleCount)

	if e.alarmActive {
		return false
	}

	Logger.Warn("alarm detected", "profile", match.ProfileName, "timestamp", match.Timestamp)
	e.alarmActive = true
	e.alarmSetTime = e.currentTime

	e.invokeCallback(func() {
		if e.sink.OnDetection != nil {
			e.sink.OnDetection(match.ProfileName)
		}
	})
	e.invokeCallback(func() {
		if e.sink.OnMatch != nil {
			e.sink.OnMatch(match)
		}
	})

	return true
}

// invokeCallback runs fn, recovering from any panic so a misbehaving sink
// cannot stop the pipeline (spec §7 CallbackError).
func (e *Engine) invokeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("callback panicked", "recovered", r)
		}
	}()
	fn()
}

// AlarmActive reports whether an alarm is currently in its active window.
func (e *Engine) AlarmActive() bool {
	return e.alarmActive
}

// CurrentTime returns the engine's internal clock, in seconds since the
// first processed chunk.
func (e *Engine) CurrentTime() float64 {
	return e.currentTime
}

// Flush closes out any still-open tones as if the stream ended now, runs
// them through the matcher one final time, and returns any resulting
// matches. Intended for end-of-stream cleanup (spec §4.3 "Failure modes").
func (e *Engine) Flush() []PatternMatchEvent {
	events := e.generator.Flush(e.currentTime)
	for _, ev := range events {
		e.matcher.AddEvent(ev)
	}

	var matches []PatternMatchEvent
	for _, match := range e.matcher.Evaluate(e.currentTime) {
		e.triggerAlarm(match)
		matches = append(matches, match)
	}
	return matches
}
