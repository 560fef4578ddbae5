// Package clock converts stored wall-clock timestamps into comparable
// instants and formats instants for customer-facing messages. Appointment
// times are stored naive in the business timezone; every comparison in the
// scheduling engine happens on the normalized instants this package produces.
package clock

import (
	"fmt"
	"time"
)

// Clock is a source of "now", injectable for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by the system time in UTC.
func System() Clock { return systemClock{} }

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// Normalizer interprets naive wall-clock values in the single business
// timezone and renders instants back into it for display.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer loads the business timezone by IANA name.
func NewNormalizer(tz string) (*Normalizer, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("clock: load timezone %q: %w", tz, err)
	}
	return &Normalizer{loc: loc}, nil
}

// Normalize reinterprets the wall-clock fields of t in the business timezone
// and returns the corresponding instant in UTC.
func (n *Normalizer) Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), n.loc).UTC()
}

// In converts an instant into the business timezone.
func (n *Normalizer) In(t time.Time) time.Time {
	return t.In(n.loc)
}

// FormatDate renders an instant as a human-readable date in the business
// timezone, e.g. "Monday, January 2, 2006".
func (n *Normalizer) FormatDate(t time.Time) string {
	return t.In(n.loc).Format("Monday, January 2, 2006")
}

// FormatTime renders an instant as a clock time in the business timezone,
// e.g. "3:04 PM".
func (n *Normalizer) FormatTime(t time.Time) string {
	return t.In(n.loc).Format("3:04 PM")
}

// Location exposes the business timezone.
func (n *Normalizer) Location() *time.Location { return n.loc }
