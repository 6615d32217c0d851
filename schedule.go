package timetable

import (
	"context"
	"fmt"
	"strings"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
	"warpcorp.dev/timetable/storage"
)

// Schedule serves lines, districts and generated timetables from one
// reference feed.
type Schedule struct {
	Metadata *storage.FeedMetadata
	Reader   storage.FeedReader

	generator Generator
}

func NewSchedule(reader storage.FeedReader, metadata *storage.FeedMetadata) *Schedule {
	return &Schedule{
		Metadata:  metadata,
		Reader:    reader,
		generator: NewGenerator(),
	}
}

// Returns all districts, ordered by code.
//
// The context is unused. It's there so Schedule can act as a
// DistrictDirectory.
func (s *Schedule) Districts(ctx context.Context) ([]model.District, error) {
	ds, err := s.Reader.Districts()
	if err != nil {
		return nil, fmt.Errorf("getting districts: %w", err)
	}

	districts := make([]model.District, 0, len(ds))
	for _, d := range ds {
		districts = append(districts, *d)
	}
	return districts, nil
}

// Returns all lines in the feed, ordered by code. Reverse directions
// are not included, see Directions().
func (s *Schedule) Lines() ([]model.Line, error) {
	ls, err := s.Reader.Lines()
	if err != nil {
		return nil, fmt.Errorf("getting lines: %w", err)
	}

	lines := make([]model.Line, 0, len(ls))
	for _, l := range ls {
		lines = append(lines, *l)
	}
	return lines, nil
}

// Returns the line with the given code. A <code>-rev line is derived
// from <code> unless the feed has it explicitly.
func (s *Schedule) Line(code string) (*model.Line, error) {
	line, err := s.Reader.Line(code)
	if err != nil {
		return nil, fmt.Errorf("getting line %s: %w", code, err)
	}
	if line != nil {
		return line, nil
	}

	base := strings.TrimSuffix(code, model.ReverseSuffix)
	if base != code {
		line, err = s.Reader.Line(base)
		if err != nil {
			return nil, fmt.Errorf("getting line %s: %w", base, err)
		}
		if line != nil {
			reversed := line.Reverse()
			return &reversed, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownLine, code)
}

// Returns the base departures of a line. A known line without any
// scheduled departures has an empty definition.
func (s *Schedule) Definition(code string) (*model.ScheduleDefinition, error) {
	if _, err := s.Line(code); err != nil {
		return nil, err
	}

	def, err := s.Reader.Schedule(code)
	if err != nil {
		return nil, fmt.Errorf("getting schedule for %s: %w", code, err)
	}
	if def == nil {
		return &model.ScheduleDefinition{
			LineCode:           code,
			BaseDepartureTimes: []clock.TimeOfDay{},
		}, nil
	}
	return def, nil
}

// Returns the line followed by its reverse direction, if the feed
// schedules or defines one.
func (s *Schedule) Directions(code string) ([]model.Line, error) {
	line, err := s.Line(code)
	if err != nil {
		return nil, err
	}
	directions := []model.Line{*line}

	if strings.HasSuffix(code, model.ReverseSuffix) {
		return directions, nil
	}

	revCode := model.ReverseCode(code)
	rev, err := s.Reader.Line(revCode)
	if err != nil {
		return nil, fmt.Errorf("getting line %s: %w", revCode, err)
	}
	if rev != nil {
		return append(directions, *rev), nil
	}

	def, err := s.Reader.Schedule(revCode)
	if err != nil {
		return nil, fmt.Errorf("getting schedule for %s: %w", revCode, err)
	}
	if def != nil {
		directions = append(directions, line.Reverse())
	}

	return directions, nil
}

// Generates one timetable per base departure of the line, in display
// order.
func (s *Schedule) Timetables(code string) ([]*model.GeneratedTimetable, error) {
	line, err := s.Line(code)
	if err != nil {
		return nil, err
	}

	def, err := s.Definition(code)
	if err != nil {
		return nil, err
	}

	tables := make([]*model.GeneratedTimetable, 0, len(def.BaseDepartureTimes))
	for _, base := range def.BaseDepartureTimes {
		tt, err := s.generator.GenerateTimetable(line, base)
		if err != nil {
			return nil, fmt.Errorf("generating %s at %s: %w", code, base, err)
		}
		tables = append(tables, tt)
	}

	return tables, nil
}

// Generates the timetable of a single scheduled departure. Departures
// not in the line's definition yield ErrUnknownSchedule.
func (s *Schedule) Timetable(code string, base clock.TimeOfDay) (*model.GeneratedTimetable, error) {
	line, err := s.Line(code)
	if err != nil {
		return nil, err
	}

	def, err := s.Definition(code)
	if err != nil {
		return nil, err
	}

	for _, t := range def.BaseDepartureTimes {
		if t == base {
			return s.generator.GenerateTimetable(line, base)
		}
	}

	return nil, fmt.Errorf("%w: %s has no departure at %s", ErrUnknownSchedule, code, base)
}
