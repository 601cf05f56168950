package window

import (
	"time"

	windowagg "github.com/goliatone/go-windowagg"
)

// Form is the editable display state of a window: magnitudes with their
// units, kept apart from the tagged Spec until the form is saved.
type Form struct {
	Kind       Kind
	Length     *int64
	LengthUnit TimeUnit
	Slide      *int64
	SlideUnit  TimeUnit
	TsField    string
	LagSeconds *int64

	// storedLag keeps a sub-second lag loaded from a spec until the lag
	// is edited.
	storedLag *time.Duration
}

// NewForm returns an empty duration form with second units.
func NewForm() Form {
	return Form{
		Kind:       KindDuration,
		LengthUnit: Seconds,
		SlideUnit:  Seconds,
		TsField:    ProcessingTime,
	}
}

// SetKind switches the interval kind. The unit is reset while the entered
// magnitude is kept. The slide is left untouched.
func (f *Form) SetKind(kind Kind) {
	if kind != KindCount {
		kind = KindDuration
	}
	f.Kind = kind
	f.LengthUnit = Seconds
}

// SetLength sets the window magnitude and mirrors it into the slide.
func (f *Form) SetLength(v int64) {
	v = abs(v)
	f.Length = &v
	slide := v
	f.Slide = &slide
}

// ClearLength unsets the window magnitude.
func (f *Form) ClearLength() {
	f.Length = nil
}

// SetLengthUnit sets the window unit and the slide unit with it.
func (f *Form) SetLengthUnit(u TimeUnit) {
	if !u.Valid() {
		return
	}
	f.LengthUnit = u
	f.SlideUnit = u
}

func (f *Form) SetSlide(v int64) {
	v = abs(v)
	f.Slide = &v
}

// ClearSlide turns the window into a tumbling window.
func (f *Form) ClearSlide() {
	f.Slide = nil
}

func (f *Form) SetSlideUnit(u TimeUnit) {
	if !u.Valid() {
		return
	}
	f.SlideUnit = u
}

// SetTsField selects the timestamp field. An empty value clears both the
// field and the lag.
func (f *Form) SetTsField(name string) {
	if name == "" {
		f.TsField = ""
		f.LagSeconds = nil
		f.storedLag = nil
		return
	}
	f.TsField = name
}

func (f *Form) SetLag(seconds int64) {
	seconds = abs(seconds)
	f.LagSeconds = &seconds
	f.storedLag = nil
}

// Validate reports the structural errors that disable saving.
func (f Form) Validate() error {
	if f.Length == nil || *f.Length <= 0 {
		return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeMissingWindowLength,
			"window length is required", nil, nil)
	}
	if !IsProcessingTime(f.TsField) && f.LagSeconds == nil {
		return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeMissingLag,
			"lag is required when a timestamp field is selected", nil, map[string]any{
				"ts_field": f.TsField,
			})
	}
	return nil
}

// Spec converts the display state into a window spec.
func (f Form) Spec() (Spec, error) {
	if err := f.Validate(); err != nil {
		return Spec{}, err
	}
	out := Spec{Length: f.interval(*f.Length, f.LengthUnit)}
	if f.Slide != nil && *f.Slide > 0 {
		out.Slide = f.interval(*f.Slide, f.SlideUnit)
	}
	if !IsProcessingTime(f.TsField) {
		out.TsField = f.TsField
		lag := time.Duration(*f.LagSeconds) * time.Second
		if f.storedLag != nil && ceilSeconds(*f.storedLag) == *f.LagSeconds {
			lag = *f.storedLag
		}
		out.Lag = &lag
	}
	return out, nil
}

func (f Form) interval(v int64, unit TimeUnit) Interval {
	if f.Kind == KindCount {
		return Count{Value: v}
	}
	if !unit.Valid() {
		unit = Seconds
	}
	return Duration{Value: v, Unit: unit}
}

// FormFromSpec builds the display state of a stored window. Lags are shown
// in whole seconds, rounded up; an unedited lag converts back unchanged.
func FormFromSpec(s Spec) Form {
	f := NewForm()
	switch length := s.Length.(type) {
	case Duration:
		f.Kind = KindDuration
		v := length.Value
		f.Length = &v
		f.LengthUnit = length.Unit
	case Count:
		f.Kind = KindCount
		v := length.Value
		f.Length = &v
	}
	switch slide := s.Slide.(type) {
	case Duration:
		v := slide.Value
		f.Slide = &v
		f.SlideUnit = slide.Unit
	case Count:
		v := slide.Value
		f.Slide = &v
	}
	if IsProcessingTime(s.TsField) {
		f.TsField = ProcessingTime
	} else {
		f.TsField = s.TsField
	}
	if s.Lag != nil {
		secs := ceilSeconds(*s.Lag)
		f.LagSeconds = &secs
		if *s.Lag%time.Second != 0 {
			lag := *s.Lag
			f.storedLag = &lag
		}
	}
	return f
}

func ceilSeconds(d time.Duration) int64 {
	d = time.Duration(abs(int64(d)))
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
