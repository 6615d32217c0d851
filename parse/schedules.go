package parse

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
	"warpcorp.dev/timetable/storage"
)

type ScheduleCSV struct {
	LineCode      string `csv:"line_code"`
	DepartureTime string `csv:"departure_time"`
}

// Parses schedules.txt, returning the number of scheduled lines.
//
// Schedules may reference a line directly, or its reverse direction
// as <line_code>-rev. Row order is kept as display order.
func ParseSchedules(writer storage.FeedWriter, data io.Reader, lines map[string]bool) (int, error) {
	order := []string{}
	byLine := map[string]*model.ScheduleDefinition{}
	seen := map[string]map[clock.TimeOfDay]bool{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(s *ScheduleCSV) error {
		i += 1

		if !lines[s.LineCode] {
			base := strings.TrimSuffix(s.LineCode, model.ReverseSuffix)
			if base == s.LineCode || !lines[base] {
				return fmt.Errorf("unknown line_code: '%s' (row %d)", s.LineCode, i+1)
			}
		}

		t, err := clock.Parse(s.DepartureTime)
		if err != nil {
			return errors.Wrapf(err, "parsing departure_time (row %d)", i+1)
		}

		sd, found := byLine[s.LineCode]
		if !found {
			sd = &model.ScheduleDefinition{LineCode: s.LineCode}
			byLine[s.LineCode] = sd
			seen[s.LineCode] = map[clock.TimeOfDay]bool{}
			order = append(order, s.LineCode)
		}
		if seen[s.LineCode][t] {
			return fmt.Errorf("duplicate departure_time %s for line_code '%s' (row %d)", t, s.LineCode, i+1)
		}
		seen[s.LineCode][t] = true
		sd.BaseDepartureTimes = append(sd.BaseDepartureTimes, t)

		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "unmarshaling schedules csv")
	}

	for _, lineCode := range order {
		err := writer.WriteSchedule(byLine[lineCode])
		if err != nil {
			return 0, errors.Wrapf(err, "writing schedule for '%s'", lineCode)
		}
	}

	return len(order), nil
}
