// Package decay classifies how fresh a mastered step is.
package decay

import (
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

// Bucket is a freshness class.
type Bucket string

const (
	Fresh     Bucket = "fresh"
	Fragile   Bucket = "fragile"
	Stale     Bucket = "stale"
	Forgotten Bucket = "forgotten"
)

// Buckets lists every bucket from freshest to stalest.
var Buckets = []Bucket{Fresh, Fragile, Stale, Forgotten}

// Thresholds are the lower bounds of the fragile, stale and forgotten buckets.
type Thresholds struct {
	Fragile   time.Duration
	Stale     time.Duration
	Forgotten time.Duration
}

// DefaultThresholds: fresh under 14 days, fragile under 45, stale under 120.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fragile:   timeutil.Days(14),
		Stale:     timeutil.Days(45),
		Forgotten: timeutil.Days(120),
	}
}

// ThresholdsFromDays builds and validates thresholds given in days.
func ThresholdsFromDays(fragile, stale, forgotten int) (Thresholds, error) {
	t := Thresholds{
		Fragile:   timeutil.Days(fragile),
		Stale:     timeutil.Days(stale),
		Forgotten: timeutil.Days(forgotten),
	}
	return t, t.Validate()
}

// Validate requires positive, strictly increasing bounds.
func (t Thresholds) Validate() error {
	if t.Fragile <= 0 || t.Stale <= t.Fragile || t.Forgotten <= t.Stale {
		return shared.InvalidArgument("decay", "Validate", "thresholds",
			[3]time.Duration{t.Fragile, t.Stale, t.Forgotten}, "must be positive and strictly increasing")
	}
	return nil
}

// Classify returns the bucket of a step validated (or last practiced) at
// validatedAt, seen from now. Elapsed time is compared as a duration, so the
// result is monotonic in now. A reference time in the future counts as fresh.
func Classify(validatedAt, now time.Time, t Thresholds) Bucket {
	elapsed := now.Sub(validatedAt)
	switch {
	case elapsed < t.Fragile:
		return Fresh
	case elapsed < t.Stale:
		return Fragile
	case elapsed < t.Forgotten:
		return Stale
	default:
		return Forgotten
	}
}

// Policy resolves thresholds per discipline.
type Policy struct {
	Default       Thresholds
	PerDiscipline map[int64]Thresholds
}

// DefaultPolicy uses DefaultThresholds everywhere.
func DefaultPolicy() Policy {
	return Policy{Default: DefaultThresholds()}
}

// For returns the thresholds that apply to a discipline.
func (p Policy) For(disciplineID int64) Thresholds {
	if t, ok := p.PerDiscipline[disciplineID]; ok {
		return t
	}
	return p.Default
}

// Validate checks every threshold set of the policy.
func (p Policy) Validate() error {
	if err := p.Default.Validate(); err != nil {
		return err
	}
	for _, t := range p.PerDiscipline {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Counts tallies steps per bucket.
type Counts map[Bucket]int

// NewCounts returns counts with every bucket present at zero.
func NewCounts() Counts {
	c := make(Counts, len(Buckets))
	for _, b := range Buckets {
		c[b] = 0
	}
	return c
}

// Total sums all buckets.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
