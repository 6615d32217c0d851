package timetable_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warpcorp.dev/timetable"
	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
	"warpcorp.dev/timetable/testutil"
)

func routesFixture() []model.MergedItinerary {
	dep := clock.MustParse("08:00")
	return []model.MergedItinerary{
		{
			Route:         []string{"A", "B", "C"},
			StationsCount: 3,
			Prices:        model.Prices{Economy: 10, FirstClass: 25},
			Schedules: []model.ItinerarySchedule{
				{ID: 1, Segments: []model.Segment{{Line: "L1", Stops: []model.Stop{
					{District: "A", Arrival: dep, Departure: &dep},
					{District: "C", Arrival: clock.MustParse("08:00:10")},
				}}}},
				{ID: 2, Segments: []model.Segment{{Line: "L1", Stops: []model.Stop{
					{District: "A", Arrival: dep, Departure: &dep},
				}}}},
			},
		},
	}
}

func directoryFixture() *testutil.FakeDirectory {
	return &testutil.FakeDirectory{
		DistrictList: testutil.Districts("A", "B", "C"),
		Routes: map[string][]model.MergedItinerary{
			"A>C": routesFixture(),
		},
	}
}

// Session started without deep link, A to C selected.
func readySession(t *testing.T, dir *testutil.FakeDirectory) *timetable.Session {
	s := timetable.NewSession(nil, dir, dir, model.BookingSession{})
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.SetFrom("A"))
	require.NoError(t, s.SetTo("C"))
	require.NoError(t, s.SetDate("2026-10-16"))
	return s
}

// Blocks Districts() until released.
type slowDirectory struct {
	*testutil.FakeDirectory
	release chan struct{}
}

func (d *slowDirectory) Districts(ctx context.Context) ([]model.District, error) {
	<-d.release
	return d.FakeDirectory.Districts(ctx)
}

func TestDeriveInitialSession(t *testing.T) {
	for _, tc := range []struct {
		query    string
		expected model.BookingSession
	}{
		{"start=A&end=C&date=2026-10-16", model.BookingSession{From: "A", To: "C", Date: "2026-10-16"}},
		{"start=A&end=C", model.BookingSession{}},
		{"end=C&date=2026-10-16", model.BookingSession{}},
		{"start=A&date=2026-10-16", model.BookingSession{}},
		{"start=A&end=A&date=2026-10-16", model.BookingSession{}},
		{"", model.BookingSession{}},
	} {
		params, err := url.ParseQuery(tc.query)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, timetable.DeriveInitialSession(params), tc.query)
	}
}

func TestSessionSelectorsDisabledWhileLoading(t *testing.T) {
	dir := &slowDirectory{directoryFixture(), make(chan struct{})}
	s := timetable.NewSession(nil, dir, dir, model.BookingSession{})
	assert.Equal(t, timetable.Idle, s.State())

	done := make(chan error)
	go func() {
		done <- s.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return s.State() == timetable.DistrictsLoading
	}, time.Second, time.Millisecond)

	assert.False(t, s.SelectorsEnabled())
	assert.Equal(t, 0, len(s.FromOptions()))
	assert.ErrorIs(t, s.SetFrom("A"), timetable.ErrDistrictUnavailable)

	close(dir.release)
	require.NoError(t, <-done)

	assert.True(t, s.SelectorsEnabled())
	assert.Equal(t, timetable.ParamsIncomplete, s.State())
	assert.Equal(t, 3, len(s.FromOptions()))
	assert.Equal(t, 0, dir.SearchCount())
}

func TestSessionDistrictsError(t *testing.T) {
	dir := directoryFixture()
	dir.DistrictErr = errors.New("connection refused")

	s := timetable.NewSession(nil, dir, dir, model.BookingSession{})
	err := s.Start(context.Background())
	assert.ErrorIs(t, err, timetable.ErrCollaboratorUnavailable)

	assert.Equal(t, timetable.DistrictsError, s.State())
	assert.Equal(t, "connection refused", s.Message())
	assert.False(t, s.SelectorsEnabled())
}

func TestSessionDistrictsRetry(t *testing.T) {
	dir := directoryFixture()
	dir.DistrictErr = errors.New("connection refused")

	s := timetable.NewSession(nil, dir, dir, model.BookingSession{})
	require.Error(t, s.Start(context.Background()))
	assert.Equal(t, timetable.DistrictsError, s.State())

	// A successful retry leaves no trace of the failure
	dir.DistrictErr = nil
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, timetable.ParamsIncomplete, s.State())
	assert.NoError(t, s.Err())
	assert.Equal(t, "", s.Message())
	assert.True(t, s.SelectorsEnabled())
}

func TestSessionInvalidDeepLink(t *testing.T) {
	for _, tc := range []struct {
		name   string
		params url.Values
	}{
		{"unknown district", url.Values{"start": {"A"}, "end": {"Z"}, "date": {"2026-10-16"}}},
		{"bad date", url.Values{"start": {"A"}, "end": {"C"}, "date": {"not-a-date"}}},
		{"both", url.Values{"start": {"A"}, "end": {"Z"}, "date": {"not-a-date"}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := directoryFixture()

			s := timetable.NewSession(nil, dir, dir, timetable.DeriveInitialSession(tc.params))
			require.NoError(t, s.Start(context.Background()))

			assert.Equal(t, timetable.ParamsIncomplete, s.State())
			assert.Equal(t, 0, dir.SearchCount())
			assert.Equal(t, model.BookingSession{}, s.Snapshot())
		})
	}
}

func TestSessionDeepLinkAutoSearch(t *testing.T) {
	dir := directoryFixture()
	params := url.Values{"start": {"A"}, "end": {"C"}, "date": {"2026-10-16"}}

	s := timetable.NewSession(nil, dir, dir, timetable.DeriveInitialSession(params))
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, timetable.ResultsReady, s.State())
	assert.Equal(t, []string{"A>C@2026-10-16"}, dir.Searches)
	assert.Equal(t, 1, len(s.Snapshot().Results))
	assert.Equal(t, "A → B → C", s.Summaries()[0].RouteLabel)
}

func TestSessionIncompleteDeepLinkWaits(t *testing.T) {
	dir := directoryFixture()
	params := url.Values{"start": {"A"}, "date": {"2026-10-16"}}

	s := timetable.NewSession(nil, dir, dir, timetable.DeriveInitialSession(params))
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, timetable.ParamsIncomplete, s.State())
	assert.Equal(t, 0, dir.SearchCount())
	assert.Equal(t, model.BookingSession{}, s.Snapshot())
}

func TestSessionSameDistrictUnreachable(t *testing.T) {
	dir := directoryFixture()
	s := timetable.NewSession(nil, dir, dir, model.BookingSession{})
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.SetFrom("A"))

	// Destination selector never offers the origin
	for _, opt := range s.ToOptions() {
		assert.Equal(t, opt.Code == "A", opt.Disabled, opt.Code)
	}
	for _, opt := range s.FromOptions() {
		assert.False(t, opt.Disabled, opt.Code)
	}

	assert.ErrorIs(t, s.SetTo("A"), timetable.ErrDistrictUnavailable)
	assert.Equal(t, "", s.Snapshot().To)

	require.NoError(t, s.SetTo("C"))
	for _, opt := range s.FromOptions() {
		assert.Equal(t, opt.Code == "C", opt.Disabled, opt.Code)
	}
	assert.ErrorIs(t, s.SetFrom("C"), timetable.ErrDistrictUnavailable)
	assert.Equal(t, "A", s.Snapshot().From)

	assert.ErrorIs(t, s.SetFrom("Z"), timetable.ErrUnknownDistrict)

	// Clearing is always allowed
	require.NoError(t, s.SetFrom(""))
	assert.Equal(t, "", s.Snapshot().From)
}

func TestSessionSearchValidation(t *testing.T) {
	dir := directoryFixture()
	s := timetable.NewSession(nil, dir, dir, model.BookingSession{})
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.SetFrom("A"))

	err := s.Search(context.Background())
	assert.ErrorIs(t, err, timetable.ErrValidation)
	assert.Equal(t, timetable.ParamsIncomplete, s.State())
	assert.Equal(t, "Please select origin, destination, and date.", s.Message())
	assert.Equal(t, 0, dir.SearchCount())

	assert.ErrorIs(t, s.SetDate("16/10/2026"), timetable.ErrValidation)
}

func TestSessionParamChangeClearsResults(t *testing.T) {
	for name, change := range map[string]func(s *timetable.Session) error{
		"date": func(s *timetable.Session) error { return s.SetDate("2026-10-17") },
		"from": func(s *timetable.Session) error { return s.SetFrom("B") },
		"to":   func(s *timetable.Session) error { return s.SetTo("B") },
	} {
		t.Run(name, func(t *testing.T) {
			s := readySession(t, directoryFixture())
			require.NoError(t, s.Search(context.Background()))
			require.Equal(t, timetable.ResultsReady, s.State())
			require.NoError(t, s.ToggleExpansion(1))
			require.NotNil(t, s.Snapshot().ExpandedScheduleID)

			require.NoError(t, change(s))

			snap := s.Snapshot()
			assert.Equal(t, timetable.ParamsIncomplete, s.State())
			assert.Equal(t, 0, len(snap.Results))
			assert.Nil(t, snap.ExpandedScheduleID)
			assert.Nil(t, s.Expanded())
			assert.Equal(t, []timetable.Summary{}, s.Summaries())
		})
	}
}

func TestSessionNoRoutes(t *testing.T) {
	dir := directoryFixture()
	s := readySession(t, dir)
	require.NoError(t, s.SetFrom("B"))

	require.NoError(t, s.Search(context.Background()))
	assert.Equal(t, timetable.ResultsEmpty, s.State())
	assert.Equal(t, "No routes found for the selected districts.", s.Message())
	assert.NoError(t, s.Err())
	assert.Equal(t, []model.MergedItinerary{}, s.Snapshot().Results)
}

func TestSessionSearchFailure(t *testing.T) {
	dir := directoryFixture()
	s := readySession(t, dir)

	require.NoError(t, s.Search(context.Background()))
	require.Equal(t, 1, len(s.Snapshot().Results))

	dir.RoutesErr = errors.New("route service returned 503")
	err := s.Search(context.Background())
	assert.ErrorIs(t, err, timetable.ErrCollaboratorUnavailable)

	assert.Equal(t, timetable.ResultsError, s.State())
	assert.Equal(t, "route service returned 503", s.Message())
	assert.ErrorIs(t, s.Err(), timetable.ErrCollaboratorUnavailable)
	assert.Nil(t, s.Snapshot().Results)
	assert.Equal(t, []timetable.Summary{}, s.Summaries())

	// Single attempt per search
	assert.Equal(t, 2, dir.SearchCount())
}

func TestSessionMalformedResponse(t *testing.T) {
	for _, tc := range []struct {
		name   string
		routes func() []model.MergedItinerary
	}{
		{"segment without stops", func() []model.MergedItinerary {
			broken := routesFixture()
			broken[0].Schedules[0].Segments[0].Stops = nil
			return broken
		}},
		{"schedule id shared by itineraries", func() []model.MergedItinerary {
			return append(routesFixture(), routesFixture()...)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := directoryFixture()
			dir.Routes["A>C"] = tc.routes()

			s := readySession(t, dir)
			err := s.Search(context.Background())
			assert.ErrorIs(t, err, timetable.ErrMalformedResponse)
			assert.Equal(t, timetable.ResultsError, s.State())
			assert.Nil(t, s.Snapshot().Results)
		})
	}
}

func TestSessionDiscardsStaleResponses(t *testing.T) {
	s := readySession(t, directoryFixture())

	first, err := s.BeginSearch()
	require.NoError(t, err)
	second, err := s.BeginSearch()
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	// The later request resolves first
	require.NoError(t, s.CompleteSearch(second, routesFixture(), nil))
	assert.Equal(t, timetable.ResultsReady, s.State())

	// The earlier one can't overwrite it, not even with an error
	err = s.CompleteSearch(first, nil, errors.New("boom"))
	assert.ErrorIs(t, err, timetable.ErrSuperseded)
	assert.Equal(t, timetable.ResultsReady, s.State())
	assert.Equal(t, 1, len(s.Snapshot().Results))

	// A parameter change also invalidates the request in flight
	third, err := s.BeginSearch()
	require.NoError(t, err)
	require.NoError(t, s.SetDate("2026-10-18"))
	err = s.CompleteSearch(third, routesFixture(), nil)
	assert.ErrorIs(t, err, timetable.ErrSuperseded)
	assert.Equal(t, timetable.ParamsIncomplete, s.State())
	assert.Equal(t, 0, len(s.Snapshot().Results))
}

func TestSessionExpansionAndSelect(t *testing.T) {
	s := readySession(t, directoryFixture())
	assert.ErrorIs(t, s.ToggleExpansion(1), timetable.ErrUnknownSchedule)

	require.NoError(t, s.Search(context.Background()))

	require.NoError(t, s.ToggleExpansion(1))
	assert.Equal(t, model.ScheduleID(1), *s.Expanded())
	require.NoError(t, s.ToggleExpansion(2))
	assert.Equal(t, model.ScheduleID(2), *s.Snapshot().ExpandedScheduleID)
	require.NoError(t, s.ToggleExpansion(2))
	assert.Nil(t, s.Expanded())

	assert.ErrorIs(t, s.ToggleExpansion(42), timetable.ErrUnknownSchedule)

	before := s.Snapshot()
	intent, err := s.Select(0, 2)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseIntent{Start: "A", End: "C", Date: "2026-10-16", ScheduleID: 2}, intent)
	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, timetable.ResultsReady, s.State())

	_, err = s.Select(1, 2)
	assert.ErrorIs(t, err, timetable.ErrUnknownSchedule)
	_, err = s.Select(0, 3)
	assert.ErrorIs(t, err, timetable.ErrUnknownSchedule)
}

func TestSessionClose(t *testing.T) {
	dir := directoryFixture()
	s := timetable.NewSession(nil, dir, dir, model.BookingSession{}, timetable.WithUser(model.User{Username: "zed"}))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "zed", s.User().Username)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Nil(t, s.User())
	assert.ErrorIs(t, s.SetFrom("A"), timetable.ErrSessionClosed)
	assert.ErrorIs(t, s.SetDate("2026-10-16"), timetable.ErrSessionClosed)
	assert.ErrorIs(t, s.Search(context.Background()), timetable.ErrSessionClosed)
	assert.ErrorIs(t, s.Start(context.Background()), timetable.ErrSessionClosed)
	_, err := s.Select(0, 1)
	assert.ErrorIs(t, err, timetable.ErrSessionClosed)
	assert.False(t, s.SelectorsEnabled())
}
