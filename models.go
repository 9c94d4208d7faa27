package alarm

import "fmt"

// Range is an inclusive numeric interval [Min, Max], used for both
// frequency (Hz) and duration (s) bounds.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether x falls within the closed interval [Min, Max].
func (r Range) Contains(x float64) bool {
	return r.Min <= x && x <= r.Max
}

func (r Range) validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("%w: [%g, %g]", ErrInvertedRange, r.Min, r.Max)
	}
	return nil
}

// SegmentKind tags the variant of a Segment.
type SegmentKind int

const (
	SegmentTone SegmentKind = iota
	SegmentSilence
	SegmentAny
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentTone:
		return "tone"
	case SegmentSilence:
		return "silence"
	case SegmentAny:
		return "any"
	default:
		return "unknown"
	}
}

// MarshalJSON renders a SegmentKind as its lowercase name rather than its
// ordinal, matching the profile file format's `type:` field (spec §6).
func (k SegmentKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON accepts the "tone"/"silence"/"any" spellings.
func (k *SegmentKind) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"tone"`:
		*k = SegmentTone
	case `"silence"`:
		*k = SegmentSilence
	case `"any"`:
		*k = SegmentAny
	default:
		return fmt.Errorf("unknown segment kind %s", data)
	}
	return nil
}

// Segment is one step in an alarm pattern. Frequency is only meaningful
// (and required) for SegmentTone; MinMagnitude is likewise tone-only.
type Segment struct {
	Kind         SegmentKind `json:"type"`
	Frequency    Range       `json:"frequency"` // required for SegmentTone
	Duration     Range       `json:"duration"`
	MinMagnitude float64     `json:"min_magnitude,omitempty"`
}

// Tone builds a tone segment.
func Tone(frequency, duration Range, minMagnitude float64) Segment {
	return Segment{Kind: SegmentTone, Frequency: frequency, Duration: duration, MinMagnitude: minMagnitude}
}

// Silence builds a silence segment.
func Silence(duration Range) Segment {
	return Segment{Kind: SegmentSilence, Duration: duration}
}

// AnySegment builds a wildcard segment. It passes validation and its
// duration counts toward the pattern duration, but the WindowedMatcher
// matches only tone and silence segments: an any segment matches no event.
func AnySegment(duration Range) Segment {
	return Segment{Kind: SegmentAny, Duration: duration}
}

func (s Segment) validate() error {
	if err := s.Duration.validate(); err != nil {
		return fmt.Errorf("%s segment duration: %w", s.Kind, err)
	}
	if s.Duration.Min <= 0 {
		return fmt.Errorf("%s segment: %w", s.Kind, ErrNonPositiveDuration)
	}
	if s.Kind == SegmentTone {
		if s.Frequency == (Range{}) {
			return fmt.Errorf("%w", ErrMissingFrequency)
		}
		if err := s.Frequency.validate(); err != nil {
			return fmt.Errorf("tone segment frequency: %w", err)
		}
	}
	return nil
}

// ResolutionConfig controls the EventGenerator's temporal sensitivity.
type ResolutionConfig struct {
	MinToneDuration  float64 // seconds; reject tones shorter than this
	DropoutTolerance float64 // seconds; bridge gaps up to this
}

// StandardResolution is the default preset for noisy environments
// (spec §6): 0.10s / 0.15s at chunk_size=4096.
func StandardResolution() ResolutionConfig {
	return ResolutionConfig{MinToneDuration: 0.10, DropoutTolerance: 0.15}
}

// HighResolutionPreset is the preset for fast patterns with small gaps
// (spec §6): 0.05s / 0.05s at chunk_size<=2048.
func HighResolutionPreset() ResolutionConfig {
	return ResolutionConfig{MinToneDuration: 0.05, DropoutTolerance: 0.05}
}

// AlarmProfile defines one repetitive tone/silence pattern to detect.
type AlarmProfile struct {
	Name               string
	Segments           []Segment
	ConfirmationCycles int
	ResetTimeout       float64 // seconds; default 10
	Resolution         *ResolutionConfig
	WindowDuration     float64 // seconds; 0 means auto-computed
	EvalFrequency      float64 // seconds; 0 means auto-computed
}

// NewAlarmProfile validates and returns an AlarmProfile, filling in
// documented defaults (confirmation_cycles=1, reset_timeout=10s).
func NewAlarmProfile(name string, segments []Segment, opts ...func(*AlarmProfile)) (AlarmProfile, error) {
	p := AlarmProfile{
		Name:               name,
		Segments:           segments,
		ConfirmationCycles: 1,
		ResetTimeout:       10.0,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return AlarmProfile{}, err
	}
	return p, nil
}

// Validate checks the InvalidProfile invariants from spec §7: non-empty
// segment list, every tone segment has a frequency range, no inverted
// ranges, positive durations.
func (p AlarmProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: profile has no name", ErrInvalidProfile)
	}
	if len(p.Segments) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, ErrEmptySegments)
	}
	for i, seg := range p.Segments {
		if err := seg.validate(); err != nil {
			return fmt.Errorf("%w: segment %d: %w", ErrInvalidProfile, i, err)
		}
	}
	if p.ConfirmationCycles < 1 {
		return fmt.Errorf("%w: confirmation_cycles must be >= 1", ErrInvalidProfile)
	}
	return nil
}

// ToneSegments returns only the Tone segments, in pattern order.
func (p AlarmProfile) ToneSegments() []Segment {
	out := make([]Segment, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Kind == SegmentTone {
			out = append(out, s)
		}
	}
	return out
}

// SilenceSegments returns only the Silence segments, in pattern order.
func (p AlarmProfile) SilenceSegments() []Segment {
	out := make([]Segment, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Kind == SegmentSilence {
			out = append(out, s)
		}
	}
	return out
}

// EffectiveResolution returns the profile's resolution override, or the
// standard preset if none was set.
func (p AlarmProfile) EffectiveResolution() ResolutionConfig {
	if p.Resolution != nil {
		return *p.Resolution
	}
	return StandardResolution()
}

// ComputeFinestResolution scans all profiles and returns the smallest
// min_tone_duration and dropout_tolerance across them (spec §6: "the engine
// computes per-profile overrides and selects the minimum of each value
// across all profiles"), defaulting to the standard preset when no profile
// overrides either field.
func ComputeFinestResolution(profiles []AlarmProfile) ResolutionConfig {
	if len(profiles) == 0 {
		return StandardResolution()
	}
	finest := profiles[0].EffectiveResolution()
	for _, p := range profiles[1:] {
		res := p.EffectiveResolution()
		if res.MinToneDuration < finest.MinToneDuration {
			finest.MinToneDuration = res.MinToneDuration
		}
		if res.DropoutTolerance < finest.DropoutTolerance {
			finest.DropoutTolerance = res.DropoutTolerance
		}
	}
	return finest
}

// Peak is a single spectral local maximum found by the SpectralMonitor.
// Ephemeral: produced per chunk, consumed within the same tick.
type Peak struct {
	Frequency float64 `json:"frequency"` // Hz, parabolically interpolated
	Magnitude float64 `json:"magnitude"`
	BinIndex  int     `json:"bin_index"`
}

// ToneEvent is a closed, continuous tone detected by the EventGenerator.
type ToneEvent struct {
	Timestamp  float64 `json:"timestamp"` // start time, seconds
	Duration   float64 `json:"duration"`  // seconds
	Frequency  float64 `json:"frequency"` // Hz
	Magnitude  float64 `json:"magnitude"`
	Confidence float64 `json:"confidence"` // [0,1]
}

// PatternMatchEvent is the terminal output of the WindowedMatcher: a
// profile's pattern was found to repeat cycleCount times within a window.
type PatternMatchEvent struct {
	Timestamp   float64 `json:"timestamp"` // seconds, time of evaluation
	Duration    float64 `json:"duration"`  // seconds, pattern_duration * cycle_count
	ProfileName string  `json:"profile_name"`
	CycleCount  int     `json:"cycle_count"`
}
