package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// SQLite backed Storage. Feed metadata and requests live in one
// database, and each feed gets a database of its own.
type SQLiteStorage struct {
	SQLiteConfig

	feedDB *sql.DB

	// Guards feeds. The refresh loop writes feeds while requests
	// read them.
	mutex sync.RWMutex
	feeds map[string]*sql.DB
}

type SQLiteFeedWriter struct {
	db *sql.DB
}

type SQLiteFeedReader struct {
	db *sql.DB
}

func openSQLite(sourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	return db, nil
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/warp.db"
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
    district_count INTEGER NOT NULL,
    line_count INTEGER NOT NULL,
    schedule_count INTEGER NOT NULL,
PRIMARY KEY (hash, url)
);

CREATE TABLE IF NOT EXISTS feed_request (
    url TEXT NOT NULL,
    headers TEXT NOT NULL,
    refreshed_at TIMESTAMP NOT NULL,
PRIMARY KEY (url)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		feedDB: db,
		feeds:  map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
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
	if filter.URL != "" {
		conditions = append(conditions, "url = ?")
		params = append(params, filter.URL)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.feedDB.Query(query, params...)
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

func (s *SQLiteStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.feedDB.Exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    district_count,
    line_count,
    schedule_count
)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    district_count = excluded.district_count,
    line_count = excluded.line_count,
    schedule_count = excluded.schedule_count
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

func (s *SQLiteStorage) ListFeedRequests(url string) ([]FeedRequest, error) {
	query := `
SELECT url, headers, refreshed_at
FROM feed_request`

	params := []interface{}{}
	if url != "" {
		query += " WHERE url = ?"
		params = append(params, url)
	}
	query += " ORDER BY url"

	rows, err := s.feedDB.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feed requests: %w", err)
	}
	defer rows.Close()

	reqs := []FeedRequest{}
	for rows.Next() {
		var req FeedRequest
		err := rows.Scan(&req.URL, &req.Headers, &req.RefreshedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning feed request: %w", err)
		}
		reqs = append(reqs, req)
	}

	return reqs, rows.Err()
}

func (s *SQLiteStorage) WriteFeedRequest(req FeedRequest) error {
	_, err := s.feedDB.Exec(`
INSERT INTO feed_request (url, headers, refreshed_at)
VALUES (?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
    headers = excluded.headers,
    refreshed_at = excluded.refreshed_at`,
		req.URL, req.Headers, req.RefreshedAt)
	if err != nil {
		return fmt.Errorf("writing feed request: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) feedSourceName(feedID string) string {
	if s.OnDisk {
		return s.Directory + "/" + feedID + ".db"
	}
	return ":memory:"
}

func (s *SQLiteStorage) GetReader(feedID string) (FeedReader, error) {
	s.mutex.RLock()
	db, found := s.feeds[feedID]
	s.mutex.RUnlock()
	if found {
		return &SQLiteFeedReader{db: db}, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Another reader may have opened it meanwhile
	if db, found := s.feeds[feedID]; found {
		return &SQLiteFeedReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", feedID)
	}

	sourceName := s.feedSourceName(feedID)
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("feed %s does not exist at %s", feedID, sourceName)
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	s.feeds[feedID] = db

	return &SQLiteFeedReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(feedID string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if old, found := s.feeds[feedID]; found {
		old.Close()
		delete(s.feeds, feedID)
	}

	sourceName := s.feedSourceName(feedID)
	if s.OnDisk {
		if _, err := os.Stat(sourceName); err == nil {
			if err := os.Remove(sourceName); err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
CREATE TABLE districts (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE lines (
    code TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    name TEXT NOT NULL
);

CREATE TABLE line_districts (
    line_code TEXT NOT NULL,
    seq INTEGER NOT NULL,
    district_code TEXT NOT NULL,
PRIMARY KEY (line_code, seq)
);

CREATE TABLE schedules (
    line_code TEXT NOT NULL,
    seq INTEGER NOT NULL,
    departure_time TEXT NOT NULL,
PRIMARY KEY (line_code, seq)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	s.feeds[feedID] = db

	return &SQLiteFeedWriter{db: db}, nil
}

func (w *SQLiteFeedWriter) WriteDistrict(district *model.District) error {
	_, err := w.db.Exec(`
INSERT INTO districts (code, name) VALUES (?, ?)
ON CONFLICT (code) DO UPDATE SET name = excluded.name`,
		district.Code, district.Name)
	if err != nil {
		return fmt.Errorf("inserting district: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) WriteLine(line *model.Line) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	_, err = tx.Exec(`
INSERT INTO lines (code, id, name) VALUES (?, ?, ?)
ON CONFLICT (code) DO UPDATE SET id = excluded.id, name = excluded.name`,
		line.Code, line.ID, line.Name)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting line: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM line_districts WHERE line_code = ?`, line.Code)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing line districts: %w", err)
	}

	for i, district := range line.Districts {
		_, err = tx.Exec(`
INSERT INTO line_districts (line_code, seq, district_code) VALUES (?, ?, ?)`,
			line.Code, i, district)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting line district: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) WriteSchedule(schedule *model.ScheduleDefinition) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM schedules WHERE line_code = ?`, schedule.LineCode)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing schedule: %w", err)
	}

	for i, t := range schedule.BaseDepartureTimes {
		_, err = tx.Exec(`
INSERT INTO schedules (line_code, seq, departure_time) VALUES (?, ?, ?)`,
			schedule.LineCode, i, t.String())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting schedule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) Close() error {
	return nil
}

func (r *SQLiteFeedReader) Districts() ([]*model.District, error) {
	rows, err := r.db.Query(`SELECT code, name FROM districts ORDER BY code`)
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

func (r *SQLiteFeedReader) lines(where string, params ...interface{}) ([]*model.Line, error) {
	rows, err := r.db.Query(`
SELECT l.code, l.id, l.name, ld.district_code
FROM lines l
LEFT JOIN line_districts ld ON ld.line_code = l.code
`+where+`
ORDER BY l.code, ld.seq`, params...)
	if err != nil {
		return nil, fmt.Errorf("querying lines: %w", err)
	}
	defer rows.Close()

	lines := []*model.Line{}
	var current *model.Line
	for rows.Next() {
		var code, id, name string
		var district sql.NullString
		if err := rows.Scan(&code, &id, &name, &district); err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		if current == nil || current.Code != code {
			current = &model.Line{ID: id, Code: code, Name: name, Districts: []string{}}
			lines = append(lines, current)
		}
		if district.Valid {
			current.Districts = append(current.Districts, district.String)
		}
	}
	return lines, rows.Err()
}

func (r *SQLiteFeedReader) Lines() ([]*model.Line, error) {
	return r.lines("")
}

func (r *SQLiteFeedReader) Line(code string) (*model.Line, error) {
	lines, err := r.lines("WHERE l.code = ?", code)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return lines[0], nil
}

func (r *SQLiteFeedReader) schedules(where string, params ...interface{}) ([]*model.ScheduleDefinition, error) {
	rows, err := r.db.Query(`
SELECT line_code, departure_time
FROM schedules
`+where+`
ORDER BY line_code, seq`, params...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*model.ScheduleDefinition{}
	var current *model.ScheduleDefinition
	for rows.Next() {
		var lineCode, departure string
		if err := rows.Scan(&lineCode, &departure); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		t, err := clock.Parse(departure)
		if err != nil {
			return nil, fmt.Errorf("schedule for %s: %w", lineCode, err)
		}
		if current == nil || current.LineCode != lineCode {
			current = &model.ScheduleDefinition{LineCode: lineCode}
			schedules = append(schedules, current)
		}
		current.BaseDepartureTimes = append(current.BaseDepartureTimes, t)
	}
	return schedules, rows.Err()
}

func (r *SQLiteFeedReader) Schedules() ([]*model.ScheduleDefinition, error) {
	return r.schedules("")
}

func (r *SQLiteFeedReader) Schedule(lineCode string) (*model.ScheduleDefinition, error) {
	schedules, err := r.schedules("WHERE line_code = ?", lineCode)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return schedules[0], nil
}
