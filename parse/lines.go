package parse

import (
	"fmt"
	"io"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"warpcorp.dev/timetable/model"
	"warpcorp.dev/timetable/storage"
)

type LineCSV struct {
	ID   string `csv:"line_id"`
	Code string `csv:"line_code"`
	Name string `csv:"line_name"`
}

type LineDistrictCSV struct {
	LineCode     string `csv:"line_code"`
	DistrictCode string `csv:"district_code"`
	Sequence     uint32 `csv:"district_sequence"`
}

type lineStop struct {
	district string
	sequence uint32
}

// Parses lines.txt and line_districts.txt. Every line must serve at
// least one known district.
func ParseLines(
	writer storage.FeedWriter,
	lineData io.Reader,
	lineDistrictData io.Reader,
	districts map[string]bool,
) (map[string]bool, error) {

	lineCsv := []*LineCSV{}
	if err := gocsv.Unmarshal(lineData, &lineCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling lines csv: %w", err)
	}

	lines := map[string]bool{}
	for i, l := range lineCsv {
		if l.Code == "" {
			return nil, fmt.Errorf("empty line_code (row %d)", i+1)
		}
		if lines[l.Code] {
			return nil, fmt.Errorf("repeated line_code '%s'", l.Code)
		}
		lines[l.Code] = true
	}

	stopsByLine := map[string][]lineStop{}
	i := -1
	err := gocsv.UnmarshalToCallbackWithError(lineDistrictData, func(ld *LineDistrictCSV) error {
		i += 1
		if !lines[ld.LineCode] {
			return fmt.Errorf("unknown line_code: '%s' (row %d)", ld.LineCode, i+1)
		}
		if ld.DistrictCode == "" {
			return fmt.Errorf("missing district_code (row %d)", i+1)
		}
		if !districts[ld.DistrictCode] {
			return fmt.Errorf("unknown district_code: '%s' (row %d)", ld.DistrictCode, i+1)
		}
		for _, s := range stopsByLine[ld.LineCode] {
			if s.sequence == ld.Sequence {
				return fmt.Errorf("duplicate district_sequence %d for line_code '%s' (row %d)", ld.Sequence, ld.LineCode, i+1)
			}
		}
		stopsByLine[ld.LineCode] = append(stopsByLine[ld.LineCode], lineStop{ld.DistrictCode, ld.Sequence})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling line_districts csv")
	}

	for _, l := range lineCsv {
		stops := stopsByLine[l.Code]
		if len(stops) == 0 {
			return nil, fmt.Errorf("line_code '%s' serves no districts", l.Code)
		}

		sort.SliceStable(stops, func(i, j int) bool {
			return stops[i].sequence < stops[j].sequence
		})

		line := model.Line{
			ID:        l.ID,
			Code:      l.Code,
			Name:      l.Name,
			Districts: make([]string, 0, len(stops)),
		}
		for _, s := range stops {
			line.Districts = append(line.Districts, s.district)
		}

		err := writer.WriteLine(&line)
		if err != nil {
			return nil, errors.Wrapf(err, "writing line '%s'", l.Code)
		}
	}

	return lines, nil
}
