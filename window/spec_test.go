package window

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	windowagg "github.com/goliatone/go-windowagg"
)

func ptr(v int64) *int64 { return &v }

func TestSpec_RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		stored windowagg.StoredWindow
	}{
		{
			name: "duration tumbling",
			stored: windowagg.StoredWindow{
				WindowLength: windowagg.StoredInterval{Class: windowagg.ClassDuration, DurationMs: ptr(600000)},
			},
		},
		{
			name: "duration sliding",
			stored: windowagg.StoredWindow{
				WindowLength:    windowagg.StoredInterval{Class: windowagg.ClassDuration, DurationMs: ptr(7200000)},
				SlidingInterval: &windowagg.StoredInterval{Class: windowagg.ClassDuration, DurationMs: ptr(90000)},
			},
		},
		{
			name: "duration with odd milliseconds",
			stored: windowagg.StoredWindow{
				WindowLength: windowagg.StoredInterval{Class: windowagg.ClassDuration, DurationMs: ptr(1500)},
			},
		},
		{
			name: "count tumbling",
			stored: windowagg.StoredWindow{
				WindowLength: windowagg.StoredInterval{Class: windowagg.ClassCount, Count: ptr(100)},
			},
		},
		{
			name: "count sliding with event time",
			stored: windowagg.StoredWindow{
				WindowLength:    windowagg.StoredInterval{Class: windowagg.ClassCount, Count: ptr(100)},
				SlidingInterval: &windowagg.StoredInterval{Class: windowagg.ClassCount, Count: ptr(10)},
				TsField:         "eventTime",
				LagMs:           ptr(5000),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := FromStorage(tc.stored)
			require.NoError(t, err)

			back, err := spec.ToStorage()
			require.NoError(t, err)
			assert.Equal(t, tc.stored, back)
		})
	}
}

func TestFromStorage_BestFitUnit(t *testing.T) {
	spec, err := FromStorage(windowagg.StoredWindow{
		WindowLength: windowagg.StoredInterval{Class: windowagg.ClassDuration, DurationMs: ptr(600000)},
	})
	require.NoError(t, err)
	assert.Equal(t, Duration{Value: 10, Unit: Minutes}, spec.Length)
	assert.Nil(t, spec.Slide)
	assert.False(t, spec.EventTime())

	assert.Equal(t, Duration{Value: 2, Unit: Hours}, BestFit(7200000))
	assert.Equal(t, Duration{Value: 90, Unit: Seconds}, BestFit(90000))
}

func TestFromStorage_LegacyClass(t *testing.T) {
	spec, err := FromStorage(windowagg.StoredWindow{
		WindowLength: windowagg.StoredInterval{Class: ".Window$Count", Count: ptr(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 5}, spec.Length)

	_, err = FromStorage(windowagg.StoredWindow{WindowLength: windowagg.StoredInterval{Class: "Session"}})
	require.Error(t, err)
	assert.True(t, windowagg.HasCode(err, windowagg.ErrCodeUnknownInterval))
}

func TestForm_TenMinutesProcessingTime(t *testing.T) {
	f := NewForm()
	f.SetLength(10)
	f.SetLengthUnit(Minutes)
	f.ClearSlide()
	f.SetTsField(ProcessingTime)

	spec, err := f.Spec()
	require.NoError(t, err)
	stored, err := spec.ToStorage()
	require.NoError(t, err)

	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.JSONEq(t, `{"windowLength":{"class":"Duration","durationMs":600000}}`, string(raw))
}

func TestForm_LengthMirrorsIntoSlide(t *testing.T) {
	f := NewForm()
	f.SetLength(-30)
	require.NotNil(t, f.Slide)
	assert.Equal(t, int64(30), *f.Length)
	assert.Equal(t, int64(30), *f.Slide)

	f.SetLengthUnit(Hours)
	assert.Equal(t, Hours, f.SlideUnit)
}

func TestForm_SetKindKeepsMagnitude(t *testing.T) {
	f := NewForm()
	f.SetLength(15)
	f.SetLengthUnit(Minutes)
	f.SetKind(KindCount)

	assert.Equal(t, KindCount, f.Kind)
	assert.Equal(t, Seconds, f.LengthUnit)
	assert.Equal(t, int64(15), *f.Length)
	// slide keeps its unit; it is reinterpreted with the new kind
	assert.Equal(t, Minutes, f.SlideUnit)

	spec, err := f.Spec()
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 15}, spec.Length)
	assert.Equal(t, Count{Value: 15}, spec.Slide)
}

func TestForm_Validate(t *testing.T) {
	f := NewForm()
	err := f.Validate()
	require.Error(t, err)
	assert.True(t, windowagg.HasCode(err, windowagg.ErrCodeMissingWindowLength))

	f.SetLength(1)
	f.SetTsField("eventTime")
	err = f.Validate()
	require.Error(t, err)
	assert.True(t, windowagg.HasCode(err, windowagg.ErrCodeMissingLag))

	f.SetLag(3)
	require.NoError(t, f.Validate())

	spec, err := f.Spec()
	require.NoError(t, err)
	require.NotNil(t, spec.Lag)
	assert.Equal(t, 3*time.Second, *spec.Lag)

	f.SetTsField("")
	assert.Nil(t, f.LagSeconds)
}

func TestFormFromSpec(t *testing.T) {
	lag := 7 * time.Second
	f := FormFromSpec(Spec{
		Length:  Duration{Value: 2, Unit: Hours},
		Slide:   Duration{Value: 30, Unit: Minutes},
		TsField: "ts",
		Lag:     &lag,
	})
	assert.Equal(t, KindDuration, f.Kind)
	assert.Equal(t, int64(2), *f.Length)
	assert.Equal(t, Hours, f.LengthUnit)
	assert.Equal(t, int64(30), *f.Slide)
	assert.Equal(t, Minutes, f.SlideUnit)
	assert.Equal(t, "ts", f.TsField)
	assert.Equal(t, int64(7), *f.LagSeconds)

	f = FormFromSpec(Spec{Length: Count{Value: 3}})
	assert.Equal(t, KindCount, f.Kind)
	assert.Equal(t, ProcessingTime, f.TsField)
	assert.Nil(t, f.Slide)
}

func TestSpec_ValidateSlideKind(t *testing.T) {
	err := Spec{Length: Count{Value: 3}, Slide: Duration{Value: 1, Unit: Seconds}}.Validate()
	require.Error(t, err)
	assert.True(t, windowagg.HasCode(err, windowagg.ErrCodeInvalidSlide))
}

func TestFormFromSpecKeepsSubSecondLag(t *testing.T) {
	lag := 1500 * time.Millisecond
	f := FormFromSpec(Spec{Length: Duration{Value: 1, Unit: Minutes}, TsField: "ts", Lag: &lag})
	assert.Equal(t, int64(2), *f.LagSeconds)

	spec, err := f.Spec()
	require.NoError(t, err)
	require.NotNil(t, spec.Lag)
	assert.Equal(t, 1500*time.Millisecond, *spec.Lag)

	f.SetLag(2)
	spec, err = f.Spec()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, *spec.Lag)
}
