// Package analysis implements the closed-form schedulability tests:
// processor utilization, the Liu–Layland bound for rate-monotonic
// scheduling and the utilization test for earliest-deadline-first.
package analysis

import "fmt"

// Verdict is the outcome of a schedulability test.
type Verdict int

const (
	Indeterminate Verdict = iota
	Schedulable
	NotSchedulable
)

func (v Verdict) String() string {
	switch v {
	case Schedulable:
		return "schedulable"
	case NotSchedulable:
		return "not-schedulable"
	default:
		return "indeterminate"
	}
}

// MarshalText encodes the verdict by name.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a verdict name.
func (v *Verdict) UnmarshalText(b []byte) error {
	switch string(b) {
	case "schedulable":
		*v = Schedulable
	case "not-schedulable":
		*v = NotSchedulable
	case "indeterminate":
		*v = Indeterminate
	default:
		return fmt.Errorf("unknown verdict %q", b)
	}
	return nil
}
