// Package profiles loads and saves AlarmProfile sets from the YAML file
// format described in spec §6. Grounded on dougsko-js8d's pkg/config/config.go
// (tagged nested structs, LoadConfig/Validate split) adapted from a single
// flat config file to a list-of-profiles document.
package profiles

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	alarm "alarmwatch"
)

// rangeDoc mirrors a Range in the YAML document.
type rangeDoc struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r rangeDoc) toRange() alarm.Range {
	return alarm.Range{Min: r.Min, Max: r.Max}
}

// segmentDoc mirrors one Segment in the YAML document.
type segmentDoc struct {
	Type         string    `yaml:"type"`
	Frequency    *rangeDoc `yaml:"frequency,omitempty"`
	Duration     rangeDoc  `yaml:"duration"`
	MinMagnitude float64   `yaml:"min_magnitude,omitempty"`
}

func (s segmentDoc) toSegment() (alarm.Segment, error) {
	duration := s.Duration.toRange()
	switch s.Type {
	case "tone":
		if s.Frequency == nil {
			return alarm.Segment{}, fmt.Errorf("%w: tone segment missing frequency", alarm.ErrMissingFrequency)
		}
		return alarm.Tone(s.Frequency.toRange(), duration, s.MinMagnitude), nil
	case "silence":
		return alarm.Silence(duration), nil
	case "any":
		return alarm.AnySegment(duration), nil
	default:
		return alarm.Segment{}, fmt.Errorf("unknown segment type %q", s.Type)
	}
}

func fromSegment(s alarm.Segment) segmentDoc {
	doc := segmentDoc{
		Type:     s.Kind.String(),
		Duration: rangeDoc{Min: s.Duration.Min, Max: s.Duration.Max},
	}
	if s.Kind == alarm.SegmentTone {
		freq := rangeDoc{Min: s.Frequency.Min, Max: s.Frequency.Max}
		doc.Frequency = &freq
		doc.MinMagnitude = s.MinMagnitude
	}
	return doc
}

// resolutionDoc mirrors an optional ResolutionConfig override.
type resolutionDoc struct {
	MinToneDuration  float64 `yaml:"min_tone_duration"`
	DropoutTolerance float64 `yaml:"dropout_tolerance"`
}

// profileDoc mirrors one AlarmProfile in the YAML document (spec §6).
type profileDoc struct {
	Name               string         `yaml:"name"`
	Segments           []segmentDoc   `yaml:"segments"`
	ConfirmationCycles int            `yaml:"confirmation_cycles,omitempty"`
	ResetTimeout       float64        `yaml:"reset_timeout,omitempty"`
	Resolution         *resolutionDoc `yaml:"resolution,omitempty"`
	WindowDuration     float64        `yaml:"window_duration,omitempty"`
	EvalFrequency      float64        `yaml:"eval_frequency,omitempty"`
}

// profileSetDoc is the top-level document shape for multi-profile files.
type profileSetDoc struct {
	Profiles []profileDoc `yaml:"profiles"`
}

func (d profileDoc) toProfile() (alarm.AlarmProfile, error) {
	segments := make([]alarm.Segment, 0, len(d.Segments))
	for i, sd := range d.Segments {
		seg, err := sd.toSegment()
		if err != nil {
			return alarm.AlarmProfile{}, fmt.Errorf("profile %q segment %d: %w", d.Name, i, err)
		}
		segments = append(segments, seg)
	}

	var opts []func(*alarm.AlarmProfile)
	if d.ConfirmationCycles > 0 {
		cycles := d.ConfirmationCycles
		opts = append(opts, func(p *alarm.AlarmProfile) { p.ConfirmationCycles = cycles })
	}
	if d.ResetTimeout > 0 {
		timeout := d.ResetTimeout
		opts = append(opts, func(p *alarm.AlarmProfile) { p.ResetTimeout = timeout })
	}
	if d.Resolution != nil {
		res := alarm.ResolutionConfig{
			MinToneDuration:  d.Resolution.MinToneDuration,
			DropoutTolerance: d.Resolution.DropoutTolerance,
		}
		opts = append(opts, func(p *alarm.AlarmProfile) { p.Resolution = &res })
	}
	if d.WindowDuration > 0 {
		wd := d.WindowDuration
		opts = append(opts, func(p *alarm.AlarmProfile) { p.WindowDuration = wd })
	}
	if d.EvalFrequency > 0 {
		ef := d.EvalFrequency
		opts = append(opts, func(p *alarm.AlarmProfile) { p.EvalFrequency = ef })
	}

	return alarm.NewAlarmProfile(d.Name, segments, opts...)
}

func fromProfile(p alarm.AlarmProfile) profileDoc {
	segs := make([]segmentDoc, 0, len(p.Segments))
	for _, s := range p.Segments {
		segs = append(segs, fromSegment(s))
	}

	doc := profileDoc{
		Name:               p.Name,
		Segments:           segs,
		ConfirmationCycles: p.ConfirmationCycles,
		ResetTimeout:       p.ResetTimeout,
		WindowDuration:     p.WindowDuration,
		EvalFrequency:      p.EvalFrequency,
	}
	if p.Resolution != nil {
		doc.Resolution = &resolutionDoc{
			MinToneDuration:  p.Resolution.MinToneDuration,
			DropoutTolerance: p.Resolution.DropoutTolerance,
		}
	}
	return doc
}

// LoadProfileFromYAML reads a single AlarmProfile document from path.
func LoadProfileFromYAML(path string) (alarm.AlarmProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return alarm.AlarmProfile{}, fmt.Errorf("read profile file: %w", err)
	}

	var doc profileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return alarm.AlarmProfile{}, fmt.Errorf("parse profile file: %w", err)
	}

	return doc.toProfile()
}

// LoadProfilesFromYAML reads a `profiles:` list document from path,
// validating for duplicate names (spec §7 InvalidProfile).
func LoadProfilesFromYAML(path string) ([]alarm.AlarmProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var set profileSetDoc
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}

	seen := make(map[string]bool, len(set.Profiles))
	out := make([]alarm.AlarmProfile, 0, len(set.Profiles))
	for _, doc := range set.Profiles {
		p, err := doc.toProfile()
		if err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: %s", alarm.ErrDuplicateProfile, p.Name)
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

// SaveProfileToYAML writes a single AlarmProfile document to path.
func SaveProfileToYAML(p alarm.AlarmProfile, path string) error {
	data, err := yaml.Marshal(fromProfile(p))
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile file: %w", err)
	}
	return nil
}

// SaveProfilesToYAML writes a `profiles:` list document to path.
func SaveProfilesToYAML(ps []alarm.AlarmProfile, path string) error {
	docs := make([]profileDoc, 0, len(ps))
	for _, p := range ps {
		docs = append(docs, fromProfile(p))
	}
	data, err := yaml.Marshal(profileSetDoc{Profiles: docs})
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profiles file: %w", err)
	}
	return nil
}
