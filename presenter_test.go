package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
)

func tod(s string) *clock.TimeOfDay {
	t := clock.MustParse(s)
	return &t
}

// A two segment itinerary A → C, changing at B.
func itineraryFixture() model.MergedItinerary {
	return model.MergedItinerary{
		Route:         []string{"A", "B", "C"},
		StationsCount: 3,
		Transfers:     []string{"B"},
		Prices:        model.Prices{Economy: 12.5, FirstClass: 40},
		Schedules: []model.ItinerarySchedule{
			{
				ID: 7,
				Segments: []model.Segment{
					{Line: "L1", Stops: []model.Stop{
						{District: "A", Arrival: clock.MustParse("08:00"), Departure: tod("08:00")},
						{District: "B", Arrival: clock.MustParse("08:00:10")},
					}},
					{Line: "L2", Stops: []model.Stop{
						{District: "B", Arrival: clock.MustParse("09:00"), Departure: tod("09:00")},
						{District: "C", Arrival: clock.MustParse("09:00:10")},
					}},
				},
			},
			{
				ID: 9,
				Segments: []model.Segment{
					{Line: "L1", Stops: []model.Stop{
						{District: "A", Arrival: clock.MustParse("12:30"), Departure: tod("12:30")},
						{District: "B", Arrival: clock.MustParse("12:30:10")},
					}},
				},
			},
		},
	}
}

func TestSummaryOf(t *testing.T) {
	assert.Equal(t, Summary{
		RouteLabel:      "A → B → C",
		StationsCount:   3,
		TransferLabel:   "B",
		EconomyPrice:    "$12.5",
		FirstClassPrice: "$40",
	}, SummaryOf(itineraryFixture()))

	it := itineraryFixture()
	it.Transfers = nil
	assert.Equal(t, "", SummaryOf(it).TransferLabel)

	it.Transfers = []string{"B", "X"}
	assert.Equal(t, "B, X", SummaryOf(it).TransferLabel)
}

func TestScheduleHeader(t *testing.T) {
	it := itineraryFixture()
	assert.Equal(t, "08:00", ScheduleHeader(it.Schedules[0]))
	assert.Equal(t, "12:30", ScheduleHeader(it.Schedules[1]))
	assert.Equal(t, "N/A", ScheduleHeader(model.ItinerarySchedule{ID: 1}))
	assert.Equal(t, "N/A", ScheduleHeader(model.ItinerarySchedule{
		ID:       1,
		Segments: []model.Segment{{Line: "L1", Stops: []model.Stop{{District: "A"}}}},
	}))
}

func TestValidateItinerary(t *testing.T) {
	assert.NoError(t, ValidateItinerary(itineraryFixture()))

	// No schedules means no expandable rows, not an error
	it := itineraryFixture()
	it.Schedules = nil
	assert.NoError(t, ValidateItinerary(it))

	for name, mutate := range map[string]func(*model.MergedItinerary){
		"empty route": func(it *model.MergedItinerary) {
			it.Route = nil
		},
		"segment without stops": func(it *model.MergedItinerary) {
			it.Schedules[0].Segments[1].Stops = nil
		},
		"segment without line": func(it *model.MergedItinerary) {
			it.Schedules[1].Segments[0].Line = ""
		},
		"duplicate schedule id": func(it *model.MergedItinerary) {
			it.Schedules[1].ID = 7
		},
	} {
		t.Run(name, func(t *testing.T) {
			it := itineraryFixture()
			mutate(&it)
			assert.ErrorIs(t, ValidateItinerary(it), ErrMalformedResponse)

			_, err := NewPresenter([]model.MergedItinerary{itineraryFixture(), it})
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestPresenterToggle(t *testing.T) {
	p, err := NewPresenter([]model.MergedItinerary{itineraryFixture()})
	require.NoError(t, err)
	assert.Nil(t, p.Expanded())

	// Toggling twice restores the original state
	p.Toggle(7)
	assert.True(t, p.IsExpanded(7))
	p.Toggle(7)
	assert.Nil(t, p.Expanded())
	assert.False(t, p.IsExpanded(7))

	// Expanding another schedule collapses the first
	p.Toggle(7)
	p.Toggle(9)
	require.NotNil(t, p.Expanded())
	assert.Equal(t, model.ScheduleID(9), *p.Expanded())
	assert.False(t, p.IsExpanded(7))

	p.Toggle(9)
	p.Toggle(9)
	assert.True(t, p.IsExpanded(9))

	p.Collapse()
	assert.Nil(t, p.Expanded())
}

// Same itinerary with schedule ids 17 and 19.
func renumberedFixture() model.MergedItinerary {
	it := itineraryFixture()
	it.Schedules[0].ID = 17
	it.Schedules[1].ID = 19
	return it
}

func TestValidateItinerariesScheduleIDs(t *testing.T) {
	for _, tc := range []struct {
		name  string
		its   []model.MergedItinerary
		valid bool
	}{
		{"empty", nil, true},
		{"single", []model.MergedItinerary{itineraryFixture()}, true},
		{"distinct ids", []model.MergedItinerary{itineraryFixture(), renumberedFixture()}, true},
		{"same itinerary twice", []model.MergedItinerary{itineraryFixture(), itineraryFixture()}, false},
		{"one id shared", []model.MergedItinerary{itineraryFixture(), func() model.MergedItinerary {
			it := renumberedFixture()
			it.Schedules[1].ID = 7
			return it
		}()}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateItineraries(tc.its)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrMalformedResponse)

			_, err = NewPresenter(tc.its)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestPresenterSummaries(t *testing.T) {
	p, err := NewPresenter([]model.MergedItinerary{itineraryFixture(), renumberedFixture()})
	require.NoError(t, err)
	summaries := p.Summaries()
	require.Equal(t, 2, len(summaries))
	assert.Equal(t, "A → B → C", summaries[1].RouteLabel)

	p, err = NewPresenter(nil)
	require.NoError(t, err)
	assert.Equal(t, []Summary{}, p.Summaries())
}

func TestSelectSchedule(t *testing.T) {
	intent, err := SelectSchedule(itineraryFixture(), 9, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseIntent{
		Start:      "A",
		End:        "C",
		Date:       "2026-10-16",
		ScheduleID: 9,
	}, intent)
	assert.Equal(t, "date=2026-10-16&end=C&scheduleId=9&start=A", intent.Query().Encode())

	_, err = SelectSchedule(itineraryFixture(), 3, "2026-10-16")
	assert.ErrorIs(t, err, ErrUnknownSchedule)
}
