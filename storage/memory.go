package storage

import (
	"fmt"
	"sort"
	"sync"

	"warpcorp.dev/timetable/model"
)

// In memory implementation of Storage below

type memoryMetadataKey struct {
	URL  string
	Hash string
}

type MemoryStorage struct {
	Feeds    map[string]*MemoryStorageFeed
	Metadata map[memoryMetadataKey]*FeedMetadata
	Requests map[string]FeedRequest

	mutex sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds:    map[string]*MemoryStorageFeed{},
		Metadata: map[memoryMetadataKey]*FeedMetadata{},
		Requests: map[string]FeedRequest{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	feeds := []*FeedMetadata{}
	for _, metadata := range s.Metadata {
		if filter.URL != "" && metadata.URL != filter.URL {
			continue
		}
		if filter.Hash != "" && metadata.Hash != filter.Hash {
			continue
		}
		m := *metadata
		feeds = append(feeds, &m)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})
	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m := *feed
	s.Metadata[memoryMetadataKey{feed.URL, feed.Hash}] = &m
	return nil
}

func (s *MemoryStorage) ListFeedRequests(url string) ([]FeedRequest, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	reqs := []FeedRequest{}
	for _, req := range s.Requests {
		if url != "" && req.URL != url {
			continue
		}
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].URL < reqs[j].URL
	})
	return reqs, nil
}

func (s *MemoryStorage) WriteFeedRequest(req FeedRequest) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Requests[req.URL] = req
	return nil
}

func (s *MemoryStorage) GetReader(feed string) (FeedReader, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	f, ok := s.Feeds[feed]
	if !ok {
		return nil, fmt.Errorf("feed %s not found", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f := &MemoryStorageFeed{
		districts: map[string]*model.District{},
		lines:     map[string]*model.Line{},
		schedules: map[string]*model.ScheduleDefinition{},
	}
	s.Feeds[feed] = f

	return f, nil
}

type MemoryStorageFeed struct {
	districts map[string]*model.District
	lines     map[string]*model.Line
	schedules map[string]*model.ScheduleDefinition
}

func (f *MemoryStorageFeed) WriteDistrict(district *model.District) error {
	d := *district
	f.districts[d.Code] = &d
	return nil
}

func (f *MemoryStorageFeed) WriteLine(line *model.Line) error {
	l := *line
	l.Districts = append([]string{}, line.Districts...)
	f.lines[l.Code] = &l
	return nil
}

func (f *MemoryStorageFeed) WriteSchedule(schedule *model.ScheduleDefinition) error {
	sd := *schedule
	sd.BaseDepartureTimes = append(sd.BaseDepartureTimes[:0:0], schedule.BaseDepartureTimes...)
	f.schedules[sd.LineCode] = &sd
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	return nil
}

func (f *MemoryStorageFeed) Districts() ([]*model.District, error) {
	districts := []*model.District{}
	for _, v := range f.districts {
		districts = append(districts, v)
	}
	sort.Slice(districts, func(i, j int) bool {
		return districts[i].Code < districts[j].Code
	})
	return districts, nil
}

func (f *MemoryStorageFeed) Lines() ([]*model.Line, error) {
	lines := []*model.Line{}
	for _, v := range f.lines {
		lines = append(lines, v)
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Code < lines[j].Code
	})
	return lines, nil
}

func (f *MemoryStorageFeed) Line(code string) (*model.Line, error) {
	return f.lines[code], nil
}

func (f *MemoryStorageFeed) Schedules() ([]*model.ScheduleDefinition, error) {
	schedules := []*model.ScheduleDefinition{}
	for _, v := range f.schedules {
		schedules = append(schedules, v)
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].LineCode < schedules[j].LineCode
	})
	return schedules, nil
}

func (f *MemoryStorageFeed) Schedule(lineCode string) (*model.ScheduleDefinition, error) {
	return f.schedules[lineCode], nil
}
