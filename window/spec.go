package window

import (
	"fmt"
	"time"

	windowagg "github.com/goliatone/go-windowagg"
)

// ProcessingTime is the timestamp field value meaning wall-clock time. It
// needs no lag and is never persisted.
const ProcessingTime = "processingTime"

// IsProcessingTime reports whether ts selects processing time.
func IsProcessingTime(ts string) bool {
	return ts == "" || ts == ProcessingTime
}

// Kind selects the interval variant.
type Kind string

const (
	KindDuration Kind = "DURATION"
	KindCount    Kind = "COUNT"
)

// TimeUnit is the display unit of a duration.
type TimeUnit string

const (
	Milliseconds TimeUnit = "Milliseconds"
	Seconds      TimeUnit = "Seconds"
	Minutes      TimeUnit = "Minutes"
	Hours        TimeUnit = "Hours"
)

// DisplayUnits lists the units offered to the operator, smallest first.
var DisplayUnits = []TimeUnit{Seconds, Minutes, Hours}

// Millis returns the length of one unit in milliseconds.
func (u TimeUnit) Millis() int64 {
	switch u {
	case Milliseconds:
		return 1
	case Minutes:
		return int64(time.Minute / time.Millisecond)
	case Hours:
		return int64(time.Hour / time.Millisecond)
	default:
		return int64(time.Second / time.Millisecond)
	}
}

// Valid reports whether u is a known unit.
func (u TimeUnit) Valid() bool {
	switch u {
	case Milliseconds, Seconds, Minutes, Hours:
		return true
	}
	return false
}

// Interval is either a Duration or a Count.
type Interval interface {
	Kind() Kind
	Amount() int64
	isInterval()
}

// Duration is a time based interval in display form.
type Duration struct {
	Value int64
	Unit  TimeUnit
}

func (Duration) Kind() Kind       { return KindDuration }
func (d Duration) Amount() int64  { return d.Value }
func (Duration) isInterval()      {}
func (d Duration) Millis() int64  { return d.Value * d.Unit.Millis() }
func (d Duration) String() string { return fmt.Sprintf("%d %s", d.Value, d.Unit) }

// Count is a tuple count interval.
type Count struct {
	Value int64
}

func (Count) Kind() Kind       { return KindCount }
func (c Count) Amount() int64  { return c.Value }
func (Count) isInterval()      {}
func (c Count) String() string { return fmt.Sprintf("%d events", c.Value) }

// BestFit converts milliseconds to the largest unit that divides it exactly.
func BestFit(ms int64) Duration {
	if ms != 0 {
		for _, unit := range []TimeUnit{Hours, Minutes, Seconds} {
			if ms%unit.Millis() == 0 {
				return Duration{Value: ms / unit.Millis(), Unit: unit}
			}
		}
		return Duration{Value: ms, Unit: Milliseconds}
	}
	return Duration{Value: 0, Unit: Seconds}
}

// Spec is a window definition. Length is nil until set; Slide is nil for a
// tumbling window.
type Spec struct {
	Length  Interval
	Slide   Interval
	TsField string
	Lag     *time.Duration
}

// EventTime reports whether the window uses an explicit timestamp field.
func (s Spec) EventTime() bool {
	return !IsProcessingTime(s.TsField)
}

// Validate checks the structural invariants of the window.
func (s Spec) Validate() error {
	if s.Length == nil || s.Length.Amount() <= 0 {
		return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeMissingWindowLength,
			"window length is required", nil, nil)
	}
	if s.Slide != nil {
		if s.Slide.Amount() <= 0 {
			return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeInvalidSlide,
				"sliding interval must be positive", nil, nil)
		}
		if s.Slide.Kind() != s.Length.Kind() {
			return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeInvalidSlide,
				"sliding interval must match the window kind", nil, map[string]any{
					"length_kind": s.Length.Kind(),
					"slide_kind":  s.Slide.Kind(),
				})
		}
	}
	if s.EventTime() && s.Lag == nil {
		return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeMissingLag,
			"lag is required when a timestamp field is selected", nil, map[string]any{
				"ts_field": s.TsField,
			})
	}
	if s.Lag != nil && *s.Lag < 0 {
		return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeMissingLag,
			"lag must not be negative", nil, nil)
	}
	return nil
}

// ToStorage converts the spec into its persisted shape.
func (s Spec) ToStorage() (windowagg.StoredWindow, error) {
	if err := s.Validate(); err != nil {
		return windowagg.StoredWindow{}, err
	}

	out := windowagg.StoredWindow{WindowLength: storeInterval(s.Length)}
	if s.Slide != nil {
		slide := storeInterval(s.Slide)
		out.SlidingInterval = &slide
	}
	if s.EventTime() {
		out.TsField = s.TsField
		lagMs := int64(*s.Lag / time.Millisecond)
		out.LagMs = &lagMs
	}
	return out, nil
}

func storeInterval(iv Interval) windowagg.StoredInterval {
	switch v := iv.(type) {
	case Duration:
		ms := v.Millis()
		return windowagg.StoredInterval{Class: windowagg.ClassDuration, DurationMs: &ms}
	case Count:
		n := v.Value
		return windowagg.StoredInterval{Class: windowagg.ClassCount, Count: &n}
	default:
		panic(fmt.Sprintf("window: unknown interval %T", iv))
	}
}

// FromStorage reads a persisted window back, choosing the best fit display
// unit for durations.
func FromStorage(w windowagg.StoredWindow) (Spec, error) {
	length, err := readInterval(w.WindowLength)
	if err != nil {
		return Spec{}, err
	}
	out := Spec{Length: length}
	if w.SlidingInterval != nil {
		slide, err := readInterval(*w.SlidingInterval)
		if err != nil {
			return Spec{}, err
		}
		out.Slide = slide
	}
	if !IsProcessingTime(w.TsField) {
		out.TsField = w.TsField
	}
	if w.LagMs != nil {
		lag := time.Duration(*w.LagMs) * time.Millisecond
		out.Lag = &lag
	}
	return out, nil
}

func readInterval(iv windowagg.StoredInterval) (Interval, error) {
	switch normalizeClass(iv.Class) {
	case windowagg.ClassDuration:
		var ms int64
		if iv.DurationMs != nil {
			ms = *iv.DurationMs
		}
		return BestFit(ms), nil
	case windowagg.ClassCount:
		var n int64
		if iv.Count != nil {
			n = *iv.Count
		}
		return Count{Value: n}, nil
	default:
		return nil, windowagg.NewError(windowagg.ErrSchema, windowagg.ErrCodeUnknownInterval,
			fmt.Sprintf("unknown window interval class %q", iv.Class), nil, nil)
	}
}

// normalizeClass accepts the legacy ".Window$Duration" style class names.
func normalizeClass(class string) string {
	switch class {
	case windowagg.ClassDuration, ".Window$Duration":
		return windowagg.ClassDuration
	case windowagg.ClassCount, ".Window$Count":
		return windowagg.ClassCount
	}
	return class
}
