package timerange

import (
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("timerange: end must be after start")

// TimeRange represents a half-open interval [start, end).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) (TimeRange, error) {
	tr := TimeRange{Start: start.UTC(), End: end.UTC()}
	if err := tr.Validate(); err != nil {
		return TimeRange{}, err
	}
	return tr, nil
}

func (tr TimeRange) Validate() error {
	if tr.Start.IsZero() || tr.End.IsZero() {
		return ErrInvalidRange
	}
	if !tr.End.After(tr.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Overlaps reports whether two half-open intervals intersect:
// [s1,e1) and [s2,e2) overlap iff s1 < e2 && s2 < e1.
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Units returns the number of billing units covered by the range, rounding
// any partial unit up.
func (tr TimeRange) Units(unit time.Duration) int64 {
	if unit <= 0 {
		return 0
	}
	d := tr.Duration()
	units := int64(d / unit)
	if d%unit != 0 {
		units++
	}
	return units
}

// ElapsedBy reports whether the rental window has fully passed at the given instant.
func (tr TimeRange) ElapsedBy(now time.Time) bool {
	return !now.UTC().Before(tr.End)
}
