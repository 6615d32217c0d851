package timetable

import (
	"fmt"
	"strings"

	"warpcorp.dev/timetable/model"
)

const (
	RouteSeparator    = " → "
	TransferSeparator = ", "

	// Header of a schedule row without any departure.
	NoDeparture = "N/A"
)

// Display projection of a MergedItinerary.
type Summary struct {
	RouteLabel      string `json:"routeLabel"`
	StationsCount   int    `json:"stationsCount"`
	TransferLabel   string `json:"transferLabel"`
	EconomyPrice    string `json:"economyPrice"`
	FirstClassPrice string `json:"firstClassPrice"`
}

func SummaryOf(it model.MergedItinerary) Summary {
	return Summary{
		RouteLabel:      strings.Join(it.Route, RouteSeparator),
		StationsCount:   it.StationsCount,
		TransferLabel:   strings.Join(it.Transfers, TransferSeparator),
		EconomyPrice:    it.Prices.Economy.String(),
		FirstClassPrice: it.Prices.FirstClass.String(),
	}
}

// ScheduleHeader is the departure shown on a collapsed schedule row:
// the first departure of its first segment.
func ScheduleHeader(s model.ItinerarySchedule) string {
	if len(s.Segments) == 0 || len(s.Segments[0].Stops) == 0 {
		return NoDeparture
	}
	dep := s.Segments[0].Stops[0].Departure
	if dep == nil {
		return NoDeparture
	}
	return dep.String()
}

// ValidateItinerary rejects itineraries that can't be rendered. An
// itinerary without schedules is fine.
func ValidateItinerary(it model.MergedItinerary) error {
	if len(it.Route) == 0 {
		return fmt.Errorf("%w: empty route", ErrMalformedResponse)
	}

	seen := map[model.ScheduleID]bool{}
	for _, s := range it.Schedules {
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate schedule id %d", ErrMalformedResponse, s.ID)
		}
		seen[s.ID] = true

		for i, seg := range s.Segments {
			if seg.Line == "" {
				return fmt.Errorf("%w: schedule %d segment %d has no line", ErrMalformedResponse, s.ID, i)
			}
			if len(seg.Stops) == 0 {
				return fmt.Errorf("%w: schedule %d segment %d (%s) has no stops", ErrMalformedResponse, s.ID, i, seg.Line)
			}
		}
	}

	return nil
}

// ValidateItineraries validates each itinerary. Schedule ids are unique
// across the whole result set.
func ValidateItineraries(its []model.MergedItinerary) error {
	owner := map[model.ScheduleID]int{}
	for i, it := range its {
		if err := ValidateItinerary(it); err != nil {
			return fmt.Errorf("itinerary %d: %w", i, err)
		}
		for _, s := range it.Schedules {
			if prev, found := owner[s.ID]; found {
				return fmt.Errorf("%w: schedule id %d used by itineraries %d and %d", ErrMalformedResponse, s.ID, prev, i)
			}
			owner[s.ID] = i
		}
	}
	return nil
}

// Presenter holds validated itineraries and which schedule, if any, is
// expanded. At most one schedule is expanded at a time.
type Presenter struct {
	Itineraries []model.MergedItinerary

	expanded *model.ScheduleID
}

func NewPresenter(its []model.MergedItinerary) (*Presenter, error) {
	if err := ValidateItineraries(its); err != nil {
		return nil, err
	}
	return &Presenter{Itineraries: its}, nil
}

func (p *Presenter) Summaries() []Summary {
	summaries := make([]Summary, 0, len(p.Itineraries))
	for _, it := range p.Itineraries {
		summaries = append(summaries, SummaryOf(it))
	}
	return summaries
}

// Toggle collapses id if it's expanded, and otherwise expands it,
// collapsing whatever was expanded before.
func (p *Presenter) Toggle(id model.ScheduleID) {
	if p.expanded != nil && *p.expanded == id {
		p.expanded = nil
		return
	}
	p.expanded = &id
}

// The expanded schedule id, or nil.
func (p *Presenter) Expanded() *model.ScheduleID {
	if p.expanded == nil {
		return nil
	}
	id := *p.expanded
	return &id
}

func (p *Presenter) IsExpanded(id model.ScheduleID) bool {
	return p.expanded != nil && *p.expanded == id
}

func (p *Presenter) Collapse() {
	p.expanded = nil
}

// SelectSchedule builds the purchase hand-off for one of the
// itinerary's schedules. Fares and availability are left to the
// purchase flow.
func SelectSchedule(it model.MergedItinerary, id model.ScheduleID, date string) (model.PurchaseIntent, error) {
	if len(it.Route) == 0 {
		return model.PurchaseIntent{}, fmt.Errorf("%w: empty route", ErrMalformedResponse)
	}

	for _, s := range it.Schedules {
		if s.ID == id {
			return model.PurchaseIntent{
				Start:      it.Route[0],
				End:        it.Route[len(it.Route)-1],
				Date:       date,
				ScheduleID: id,
			}, nil
		}
	}

	return model.PurchaseIntent{}, fmt.Errorf("%w: %d", ErrUnknownSchedule, id)
}
