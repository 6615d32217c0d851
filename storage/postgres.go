package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLFeedWriter struct {
	id string
	db *sql.DB
}

type PSQLFeedReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS feed;
DROP TABLE IF EXISTS feed_request;
DROP TABLE IF EXISTS districts;
DROP TABLE IF EXISTS lines;
DROP TABLE IF EXISTS schedules;
`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    district_count INTEGER NOT NULL,
    line_count INTEGER NOT NULL,
    schedule_count INTEGER NOT NULL,
    PRIMARY KEY (hash, url)
);

CREATE TABLE IF NOT EXISTS feed_request (
    url TEXT NOT NULL,
    headers TEXT NOT NULL,
    refreshed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (url)
);

CREATE TABLE IF NOT EXISTS districts (
    feed_id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (feed_id, code)
);

CREATE TABLE IF NOT EXISTS lines (
    feed_id TEXT NOT NULL,
    code TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    districts TEXT[] NOT NULL,
    PRIMARY KEY (feed_id, code)
);

CREATE TABLE IF NOT EXISTS schedules (
    feed_id TEXT NOT NULL,
    line_code TEXT NOT NULL,
    departure_times TEXT[] NOT NULL,
    PRIMARY KEY (feed_id, line_code)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT
    hash,
    url,
    retrieved_at,
    district_count,
    line_count,
    schedule_count
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	paramCount := 1

	if filter.URL != "" {
		conditions = append(conditions, fmt.Sprintf("url = $%d", paramCount))
		params = append(params, filter.URL)
		paramCount++
	}
	if filter.Hash != "" {
		conditions = append(conditions, fmt.Sprintf("hash = $%d", paramCount))
		params = append(params, filter.Hash)
		paramCount++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		var feed FeedMetadata
		err := rows.Scan(
			&feed.Hash,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.DistrictCount,
			&feed.LineCount,
			&feed.ScheduleCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, &feed)
	}

	return feeds, rows.Err()
}

func (s *PSQLStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    district_count,
    line_count,
    schedule_count
)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = EXCLUDED.retrieved_at,
    district_count = EXCLUDED.district_count,
    line_count = EXCLUDED.line_count,
    schedule_count = EXCLUDED.schedule_count
`,
		feed.Hash,
		feed.URL,
		feed.RetrievedAt,
		feed.DistrictCount,
		feed.LineCount,
		feed.ScheduleCount,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListFeedRequests(url string) ([]FeedRequest, error) {
	query := `
SELECT url, headers, refreshed_at
FROM feed_request`

	params := []interface{}{}
	if url != "" {
		query += " WHERE url = $1"
		params = append(params, url)
	}
	query += " ORDER BY url"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feed requests: %w", err)
	}
	defer rows.Close()

	reqs := []FeedRequest{}
	for rows.Next() {
		var req FeedRequest
		if err := rows.Scan(&req.URL, &req.Headers, &req.RefreshedAt); err != nil {
			return nil, fmt.Errorf("scanning feed request: %w", err)
		}
		reqs = append(reqs, req)
	}

	return reqs, rows.Err()
}

func (s *PSQLStorage) WriteFeedRequest(req FeedRequest) error {
	_, err := s.db.Exec(`
INSERT INTO feed_request (url, headers, refreshed_at)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET
    headers = EXCLUDED.headers,
    refreshed_at = EXCLUDED.refreshed_at`,
		req.URL, req.Headers, req.RefreshedAt)
	if err != nil {
		return fmt.Errorf("writing feed request: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(feedID string) (FeedReader, error) {
	return &PSQLFeedReader{id: feedID, db: s.db}, nil
}

func (s *PSQLStorage) GetWriter(feedID string) (FeedWriter, error) {
	for _, table := range []string{"districts", "lines", "schedules"} {
		_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE feed_id = $1`, table), feedID)
		if err != nil {
			return nil, fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return &PSQLFeedWriter{id: feedID, db: s.db}, nil
}

func (w *PSQLFeedWriter) WriteDistrict(district *model.District) error {
	_, err := w.db.Exec(`
INSERT INTO districts (feed_id, code, name) VALUES ($1, $2, $3)
ON CONFLICT (feed_id, code) DO UPDATE SET name = EXCLUDED.name`,
		w.id, district.Code, district.Name)
	if err != nil {
		return fmt.Errorf("inserting district: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) WriteLine(line *model.Line) error {
	districts := line.Districts
	if districts == nil {
		districts = []string{}
	}
	_, err := w.db.Exec(`
INSERT INTO lines (feed_id, code, id, name, districts) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (feed_id, code) DO UPDATE SET
    id = EXCLUDED.id,
    name = EXCLUDED.name,
    districts = EXCLUDED.districts`,
		w.id, line.Code, line.ID, line.Name, pq.Array(districts))
	if err != nil {
		return fmt.Errorf("inserting line: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) WriteSchedule(schedule *model.ScheduleDefinition) error {
	times := make([]string, 0, len(schedule.BaseDepartureTimes))
	for _, t := range schedule.BaseDepartureTimes {
		times = append(times, t.String())
	}
	_, err := w.db.Exec(`
INSERT INTO schedules (feed_id, line_code, departure_times) VALUES ($1, $2, $3)
ON CONFLICT (feed_id, line_code) DO UPDATE SET departure_times = EXCLUDED.departure_times`,
		w.id, schedule.LineCode, pq.Array(times))
	if err != nil {
		return fmt.Errorf("inserting schedule: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) Close() error {
	return nil
}

func (r *PSQLFeedReader) Districts() ([]*model.District, error) {
	rows, err := r.db.Query(`
SELECT code, name FROM districts WHERE feed_id = $1 ORDER BY code COLLATE "C"`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying districts: %w", err)
	}
	defer rows.Close()

	districts := []*model.District{}
	for rows.Next() {
		d := &model.District{}
		if err := rows.Scan(&d.Code, &d.Name); err != nil {
			return nil, fmt.Errorf("scanning district: %w", err)
		}
		districts = append(districts, d)
	}
	return districts, rows.Err()
}

func (r *PSQLFeedReader) lines(where string, params ...interface{}) ([]*model.Line, error) {
	rows, err := r.db.Query(`
SELECT code, id, name, districts
FROM lines
WHERE feed_id = $1 `+where+`
ORDER BY code COLLATE "C"`, append([]interface{}{r.id}, params...)...)
	if err != nil {
		return nil, fmt.Errorf("querying lines: %w", err)
	}
	defer rows.Close()

	lines := []*model.Line{}
	for rows.Next() {
		l := &model.Line{Districts: []string{}}
		if err := rows.Scan(&l.Code, &l.ID, &l.Name, pq.Array(&l.Districts)); err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *PSQLFeedReader) Lines() ([]*model.Line, error) {
	return r.lines("")
}

func (r *PSQLFeedReader) Line(code string) (*model.Line, error) {
	lines, err := r.lines("AND code = $2", code)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return lines[0], nil
}

func (r *PSQLFeedReader) schedules(where string, params ...interface{}) ([]*model.ScheduleDefinition, error) {
	rows, err := r.db.Query(`
SELECT line_code, departure_times
FROM schedules
WHERE feed_id = $1 `+where+`
ORDER BY line_code COLLATE "C"`, append([]interface{}{r.id}, params...)...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*model.ScheduleDefinition{}
	for rows.Next() {
		var lineCode string
		var times []string
		if err := rows.Scan(&lineCode, pq.Array(&times)); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		sd := &model.ScheduleDefinition{LineCode: lineCode}
		for _, s := range times {
			t, err := clock.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("schedule for %s: %w", lineCode, err)
			}
			sd.BaseDepartureTimes = append(sd.BaseDepartureTimes, t)
		}
		schedules = append(schedules, sd)
	}
	return schedules, rows.Err()
}

func (r *PSQLFeedReader) Schedules() ([]*model.ScheduleDefinition, error) {
	return r.schedules("")
}

func (r *PSQLFeedReader) Schedule(lineCode string) (*model.ScheduleDefinition, error) {
	schedules, err := r.schedules("AND line_code = $2", lineCode)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return schedules[0], nil
}
