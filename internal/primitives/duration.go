package primitives

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so it can be written in a config file
// either as a Go duration string ("30s") or as a bare number of seconds,
// and always round-trips back out as a duration string.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if err := unmarshal(&seconds); err != nil {
		return fmt.Errorf("duration must be a string (\"30s\") or a number of seconds: %w", err)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}
