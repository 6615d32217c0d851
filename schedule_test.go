package timetable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warpcorp.dev/timetable"
	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
	"warpcorp.dev/timetable/testutil"
)

func testScheduleLines(t *testing.T, backend string) {
	s := testutil.BuildSchedule(t, backend, map[string][]string{})

	districts, err := s.Districts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.District{
		{Code: "A", Name: "Aurora"},
		{Code: "B", Name: "Borealis"},
		{Code: "C", Name: "Cassini"},
		{Code: "D", Name: "Drift"},
	}, districts)

	lines, err := s.Lines()
	require.NoError(t, err)
	require.Equal(t, 2, len(lines))
	assert.Equal(t, "L1", lines[0].Code)
	assert.Equal(t, "L2", lines[1].Code)

	line, err := s.Line("L1-rev")
	require.NoError(t, err)
	assert.Equal(t, &model.Line{
		ID:        "1",
		Code:      "L1-rev",
		Name:      "Aurora Express (return)",
		Districts: []string{"C", "B", "A"},
	}, line)

	_, err = s.Line("L9")
	assert.ErrorIs(t, err, timetable.ErrUnknownLine)
	_, err = s.Line("L9-rev")
	assert.ErrorIs(t, err, timetable.ErrUnknownLine)

	// L1 has a scheduled return, L2 doesn't
	directions, err := s.Directions("L1")
	require.NoError(t, err)
	require.Equal(t, 2, len(directions))
	assert.Equal(t, "L1", directions[0].Code)
	assert.Equal(t, "L1-rev", directions[1].Code)

	directions, err = s.Directions("L2")
	require.NoError(t, err)
	require.Equal(t, 1, len(directions))
	assert.Equal(t, "L2", directions[0].Code)
}

func testScheduleTimetables(t *testing.T, backend string) {
	s := testutil.BuildSchedule(t, backend, map[string][]string{})

	tables, err := s.Timetables("L1")
	require.NoError(t, err)
	require.Equal(t, 2, len(tables))
	assert.Equal(t, clock.MustParse("08:00"), tables[0].BaseDeparture)
	assert.Equal(t, clock.MustParse("12:30"), tables[1].BaseDeparture)
	assert.Equal(t, "C", tables[1].Stops[2].District)
	assert.Equal(t, clock.MustParse("12:50:20"), tables[1].Stops[2].Arrival)
	assert.Nil(t, tables[1].Stops[2].Departure)

	// Reverse direction runs from C
	tables, err = s.Timetables("L1-rev")
	require.NoError(t, err)
	require.Equal(t, 1, len(tables))
	assert.Equal(t, "L1-rev", tables[0].LineCode)
	assert.Equal(t, "C", tables[0].Stops[0].District)
	assert.Equal(t, "A", tables[0].Stops[2].District)

	// Past midnight the clock keeps counting
	tt, err := s.Timetable("L2", clock.MustParse("23:50"))
	require.NoError(t, err)
	assert.Equal(t, "23:50:10", tt.Stops[1].Arrival.String())

	_, err = s.Timetable("L2", clock.MustParse("23:55"))
	assert.ErrorIs(t, err, timetable.ErrUnknownSchedule)

	_, err = s.Timetables("L9")
	assert.ErrorIs(t, err, timetable.ErrUnknownLine)

	// Known line, nothing scheduled
	tables, err = s.Timetables("L2-rev")
	require.NoError(t, err)
	assert.Equal(t, 0, len(tables))
}

func TestSchedule(t *testing.T) {
	for _, test := range []struct {
		Name string
		Test func(t *testing.T, backend string)
	}{
		{"Lines", testScheduleLines},
		{"Timetables", testScheduleTimetables},
	} {
		for _, backend := range []string{"memory", "sqlite"} {
			t.Run(test.Name+" "+backend, func(t *testing.T) {
				test.Test(t, backend)
			})
		}
	}
}
