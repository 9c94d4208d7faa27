package alarm

import "errors"

// Sentinel errors for the InvalidProfile taxonomy (spec §7). Wrapped with
// fmt.Errorf("%w: ...") by the validating constructors so callers can use
// errors.Is while still getting a descriptive message.
var (
	ErrInvalidProfile      = errors.New("invalid profile")
	ErrEmptySegments       = errors.New("profile has no segments")
	ErrMissingFrequency    = errors.New("tone segment missing frequency range")
	ErrInvertedRange       = errors.New("range has min > max")
	ErrNonPositiveDuration = errors.New("duration range must be positive")
	ErrDuplicateProfile    = errors.New("duplicate profile name")
)
