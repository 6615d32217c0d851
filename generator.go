package timetable

import (
	"fmt"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
)

const (
	// Transit time between two consecutive districts.
	DefaultHop = 10

	// Dwell time at intermediate districts.
	DefaultWait = 20 * 60
)

// Generator expands base departures into per-stop times. Durations
// are in seconds.
type Generator struct {
	Hop  int
	Wait int
}

func NewGenerator() Generator {
	return Generator{Hop: DefaultHop, Wait: DefaultWait}
}

// Generate produces the stop table for a train leaving the first of
// districts at base, using the default hop and wait.
func Generate(districts []string, base clock.TimeOfDay) ([]model.Stop, error) {
	return NewGenerator().Generate(districts, base)
}

// The first stop arrives and departs at base. Every following stop
// arrives Hop seconds after the previous departure, and departs Wait
// seconds after arriving. The last stop has no departure.
func (g Generator) Generate(districts []string, base clock.TimeOfDay) ([]model.Stop, error) {
	if len(districts) == 0 {
		return nil, fmt.Errorf("%w: no districts", ErrInvalidLine)
	}

	// The origin keeps its departure even when it is also the
	// terminus.
	origin := base
	stops := make([]model.Stop, 0, len(districts))
	stops = append(stops, model.Stop{
		District:  districts[0],
		Arrival:   base,
		Departure: &origin,
	})

	last := len(districts) - 1
	prev := base
	for i := 1; i <= last; i++ {
		arrival, err := prev.Add(g.Hop)
		if err != nil {
			return nil, fmt.Errorf("arrival at %s: %w", districts[i], err)
		}

		stop := model.Stop{
			District: districts[i],
			Arrival:  arrival,
		}
		if i < last {
			departure, err := arrival.Add(g.Wait)
			if err != nil {
				return nil, fmt.Errorf("departure from %s: %w", districts[i], err)
			}
			stop.Departure = &departure
			prev = departure
		}

		stops = append(stops, stop)
	}

	return stops, nil
}

func (g Generator) GenerateTimetable(line *model.Line, base clock.TimeOfDay) (*model.GeneratedTimetable, error) {
	stops, err := g.Generate(line.Districts, base)
	if err != nil {
		return nil, fmt.Errorf("line %s: %w", line.Code, err)
	}
	return &model.GeneratedTimetable{
		LineCode:      line.Code,
		BaseDeparture: base,
		Stops:         stops,
	}, nil
}

// GenerateFromString is Generate with a HH:MM[:SS] base departure.
func (g Generator) GenerateFromString(districts []string, base string) ([]model.Stop, error) {
	t, err := clock.Parse(base)
	if err != nil {
		return nil, err
	}
	return g.Generate(districts, t)
}
