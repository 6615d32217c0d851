package directory

import (
	"fmt"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
)

func ToDistricts(in []DistrictDTO) []model.District {
	out := make([]model.District, 0, len(in))
	for _, d := range in {
		out = append(out, model.District{Code: d.Code, Name: d.Name})
	}
	return out
}

// ToItineraries maps route search results. Stop times that don't
// parse make the whole response unusable.
func ToItineraries(in []MergedRouteDTO) ([]model.MergedItinerary, error) {
	out := make([]model.MergedItinerary, 0, len(in))
	for i, r := range in {
		it, err := toItinerary(r)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		out = append(out, it)
	}
	return out, nil
}

func toItinerary(r MergedRouteDTO) (model.MergedItinerary, error) {
	it := model.MergedItinerary{
		Route:         r.Route,
		StationsCount: r.StationsCount,
		Transfers:     r.Transfer,
		Prices: model.Prices{
			Economy:    model.Money(r.Prices.Economy),
			FirstClass: model.Money(r.Prices.FirstClass),
		},
		Schedules: make([]model.ItinerarySchedule, 0, len(r.Schedules)),
	}
	if it.Transfers == nil {
		it.Transfers = []string{}
	}

	for _, s := range r.Schedules {
		schedule := model.ItinerarySchedule{
			ID:       model.ScheduleID(s.ID),
			Segments: make([]model.Segment, 0, len(s.Segments)),
		}
		for _, seg := range s.Segments {
			stops, err := toStops(seg.Stops)
			if err != nil {
				return model.MergedItinerary{}, fmt.Errorf("schedule %d line %s: %w", s.ID, seg.Line, err)
			}
			schedule.Segments = append(schedule.Segments, model.Segment{
				Line:  seg.Line,
				Stops: stops,
			})
		}
		it.Schedules = append(it.Schedules, schedule)
	}

	return it, nil
}

func toStops(in []StopDTO) ([]model.Stop, error) {
	stops := make([]model.Stop, 0, len(in))
	for _, s := range in {
		arrival, err := clock.Parse(s.Arrival)
		if err != nil {
			return nil, fmt.Errorf("arrival at %s: %w", s.Station, err)
		}
		stop := model.Stop{District: s.Station, Arrival: arrival}

		if s.Departure != nil && *s.Departure != "" {
			departure, err := clock.Parse(*s.Departure)
			if err != nil {
				return nil, fmt.Errorf("departure from %s: %w", s.Station, err)
			}
			stop.Departure = &departure
		}

		stops = append(stops, stop)
	}
	return stops, nil
}
