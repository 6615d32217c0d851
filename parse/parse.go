package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"warpcorp.dev/timetable/storage"
)

func init() {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// Parses a zipped reference feed into writer. The writer is closed
// once all files have been parsed.
func ParseFeed(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, error) {
	file := map[string]io.ReadCloser{
		"districts.txt":      nil,
		"lines.txt":          nil,
		"line_districts.txt": nil,
		"schedules.txt":      nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// Tolerate feeds zipped with a top level directory.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	for _, required := range []string{"districts.txt", "lines.txt", "line_districts.txt"} {
		if file[required] == nil {
			return nil, fmt.Errorf("missing %s", required)
		}
	}

	districts, err := ParseDistricts(writer, file["districts.txt"])
	if err != nil {
		return nil, fmt.Errorf("parsing districts.txt: %w", err)
	}

	lines, err := ParseLines(writer, file["lines.txt"], file["line_districts.txt"], districts)
	if err != nil {
		return nil, fmt.Errorf("parsing lines: %w", err)
	}

	// A feed without schedules.txt is valid, it just doesn't
	// schedule anything.
	scheduled := 0
	if file["schedules.txt"] != nil {
		scheduled, err = ParseSchedules(writer, file["schedules.txt"], lines)
		if err != nil {
			return nil, fmt.Errorf("parsing schedules.txt: %w", err)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	return &storage.FeedMetadata{
		DistrictCount: len(districts),
		LineCount:     len(lines),
		ScheduleCount: scheduled,
	}, nil
}
