package models

import "fmt"

// InvalidFrequencyError is returned when a frequency alias maps to no
// canonical bar-interval code.
type InvalidFrequencyError struct {
	Frequency string
}

func (e *InvalidFrequencyError) Error() string {
	return fmt.Sprintf("invalid frequency %q", e.Frequency)
}

// InvalidParameterError is returned when a request parameter fails
// normalization. These errors are never retried.
type InvalidParameterError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid parameter %s=%q: %s", e.Field, e.Value, e.Reason)
}
