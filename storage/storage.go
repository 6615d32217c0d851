package storage

import (
	"time"

	"warpcorp.dev/timetable/model"
)

type Storage interface {
	// Retrieves all feed metadata records matching the given
	// filter, most recently retrieved first.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// Writes a FeedMetadata record. If a record with the same URL
	// and hash exists, it is updated.
	WriteFeedMetadata(metadata *FeedMetadata) error

	// Retrieves all feed requests matching the given URL. If the
	// URL is blank, all requests are returned.
	ListFeedRequests(url string) ([]FeedRequest, error)

	// Writes a FeedRequest record. If a record with the same URL
	// exists, it is updated.
	WriteFeedRequest(req FeedRequest) error

	// Gets a reader for the feed with the given hash.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given hash. Any data
	// previously written under the same hash is replaced.
	GetWriter(feed string) (FeedWriter, error)
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given hash.
	Hash string
}

// A request to download a reference feed at the given URL, with the
// HTTP headers to use (serialized, see Manager).
type FeedRequest struct {
	URL         string
	Headers     string
	RefreshedAt time.Time
}

// Metadata for a downloaded reference feed. The parsed data can be
// accessed via FeedReader.
type FeedMetadata struct {
	URL           string
	Hash          string
	RetrievedAt   time.Time
	DistrictCount int
	LineCount     int
	ScheduleCount int
}

// Writes records for a single feed.
type FeedWriter interface {
	WriteDistrict(district *model.District) error
	WriteLine(line *model.Line) error
	WriteSchedule(schedule *model.ScheduleDefinition) error
	Close() error
}

// Reads records of a single feed.
//
// Districts, lines and schedules are ordered by code. Line districts
// and base departure times keep the order they were written in.
// Line() and Schedule() return nil without error when nothing matches.
type FeedReader interface {
	Districts() ([]*model.District, error)
	Lines() ([]*model.Line, error)
	Line(code string) (*model.Line, error)
	Schedules() ([]*model.ScheduleDefinition, error)
	Schedule(lineCode string) (*model.ScheduleDefinition, error)
}
