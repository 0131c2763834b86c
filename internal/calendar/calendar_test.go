package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/fsoa-agent/internal/calendar"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

func at(t *testing.T, loc *time.Location, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

// 2026-07-27 is a Monday; 2026-07-28 a Tuesday; 2026-07-31 a Friday.

func TestElapsedBusinessHoursSameDay(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	start := at(t, loc, 2026, time.July, 27, 9, 0)
	now := at(t, loc, 2026, time.July, 27, 10, 0)

	assert.InDelta(t, 1.0, cal.ElapsedBusinessHours(start, now), 0.001)
}

func TestElapsedBusinessHoursAcrossDays(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	start := at(t, loc, 2026, time.July, 27, 10, 0) // Mon 10:00
	now := at(t, loc, 2026, time.July, 28, 14, 0)   // Tue 14:00

	assert.InDelta(t, 14.0, cal.ElapsedBusinessHours(start, now), 0.001)
}

func TestElapsedBusinessHoursSkipsWeekend(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	start := at(t, loc, 2026, time.July, 31, 18, 0) // Fri 18:00
	now := at(t, loc, 2026, time.August, 3, 10, 0)  // Mon 10:00 (Sat/Sun skipped)

	assert.InDelta(t, 2.0, cal.ElapsedBusinessHours(start, now), 0.001) // Fri 18-19 + Mon 9-10
}

func TestElapsedBusinessHoursNonPositiveRange(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	a := at(t, loc, 2026, time.July, 27, 10, 0)
	assert.Equal(t, 0.0, cal.ElapsedBusinessHours(a, a))
	assert.Equal(t, 0.0, cal.ElapsedBusinessHours(a, a.Add(-time.Hour)))
}

func TestIsBusinessHoursBoundaries(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	assert.True(t, cal.IsBusinessHours(at(t, loc, 2026, time.July, 27, 9, 0)))
	assert.False(t, cal.IsBusinessHours(at(t, loc, 2026, time.July, 27, 19, 0)))
	assert.False(t, cal.IsBusinessHours(at(t, loc, 2026, time.July, 25, 10, 0))) // Saturday
}

func TestNextBusinessStartAlreadyInHours(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	in := at(t, loc, 2026, time.July, 27, 10, 0)
	assert.Equal(t, in, cal.NextBusinessStart(in))
}

func TestNextBusinessStartAfterHoursRollsToNextDay(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	in := at(t, loc, 2026, time.July, 27, 20, 0) // Mon 20:00
	want := at(t, loc, 2026, time.July, 28, 9, 0) // Tue 09:00
	assert.Equal(t, want, cal.NextBusinessStart(in))
}

func TestNextBusinessStartOverWeekend(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	in := at(t, loc, 2026, time.July, 25, 10, 0)   // Saturday
	want := at(t, loc, 2026, time.July, 27, 9, 0) // Monday 09:00
	assert.Equal(t, want, cal.NextBusinessStart(in))
}

func TestAddBusinessHoursWithinSameDay(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	start := at(t, loc, 2026, time.July, 27, 9, 0)
	got := cal.AddBusinessHours(start, 3)
	want := at(t, loc, 2026, time.July, 27, 12, 0)
	assert.Equal(t, want, got)
}

func TestAddBusinessHoursSpillsToNextDay(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)

	start := at(t, loc, 2026, time.July, 27, 18, 0) // Mon 18:00, 1h left today
	got := cal.AddBusinessHours(start, 3)
	want := at(t, loc, 2026, time.July, 28, 11, 0) // 1h Mon + 2h Tue
	assert.Equal(t, want, got)
}
