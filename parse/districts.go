package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"warpcorp.dev/timetable/model"
	"warpcorp.dev/timetable/storage"
)

type DistrictCSV struct {
	Code string `csv:"district_code"`
	Name string `csv:"district_name"`
}

func ParseDistricts(writer storage.FeedWriter, data io.Reader) (map[string]bool, error) {
	districtCsv := []*DistrictCSV{}
	if err := gocsv.Unmarshal(data, &districtCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling districts csv: %w", err)
	}

	districts := map[string]bool{}
	for i, d := range districtCsv {
		if d.Code == "" {
			return nil, fmt.Errorf("empty district_code (row %d)", i+1)
		}
		if districts[d.Code] {
			return nil, fmt.Errorf("repeated district_code '%s'", d.Code)
		}
		districts[d.Code] = true

		if d.Name == "" {
			return nil, fmt.Errorf("empty district_name for district_code '%s'", d.Code)
		}

		err := writer.WriteDistrict(&model.District{
			Code: d.Code,
			Name: d.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("writing district '%s': %w", d.Code, err)
		}
	}

	return districts, nil
}
