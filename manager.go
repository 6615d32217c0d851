package timetable

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"warpcorp.dev/timetable/downloader"
	"warpcorp.dev/timetable/parse"
	"warpcorp.dev/timetable/storage"
)

const (
	DefaultRefreshInterval = 12 * time.Hour
	DefaultTimeout         = 60 * time.Second
	DefaultMaxSize         = 50 << 20 // 50 MB
)

// Manager manages reference feeds.
type Manager struct {
	Timeout         time.Duration
	MaxSize         int
	RefreshInterval time.Duration
	Downloader      downloader.Downloader

	storage storage.Storage
	log     *zap.Logger
}

// Creates a new Manager of reference feeds, on top of the given
// storage. Feeds are persisted in storage, so downloads are not
// cached.
func NewManager(log *zap.Logger, s storage.Storage) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		Timeout:         DefaultTimeout,
		MaxSize:         DefaultMaxSize,
		RefreshInterval: DefaultRefreshInterval,

		Downloader: downloader.NewMemoryDownloader(),

		storage: s,
		log:     log,
	}
}

// Loads a reference feed from a URL.
//
// If a feed is available in storage, it is returned immediately.
// Otherwise, ErrNoActiveFeed is returned.
//
// A FeedRequest for this URL is placed in storage, to be picked up by
// Refresh(). Headers of an earlier request for the same URL are
// replaced.
func (m *Manager) LoadScheduleAsync(feedURL string, headers map[string]string) (*Schedule, error) {
	err := m.request(feedURL, headers)
	if err != nil {
		return nil, err
	}

	return m.loadMostRecent(feedURL)
}

// Loads a reference feed from a URL, downloading it first if storage
// has nothing for the URL.
func (m *Manager) LoadSchedule(ctx context.Context, feedURL string, headers map[string]string) (*Schedule, error) {
	err := m.request(feedURL, headers)
	if err != nil {
		return nil, err
	}

	schedule, err := m.loadMostRecent(feedURL)
	if err == nil || !errors.Is(err, ErrNoActiveFeed) {
		return schedule, err
	}

	reqs, err := m.storage.ListFeedRequests(feedURL)
	if err != nil {
		return nil, fmt.Errorf("listing feed requests: %w", err)
	}
	if len(reqs) != 1 {
		return nil, fmt.Errorf("expected 1 request for %s, found %d", feedURL, len(reqs))
	}

	feedsByHash, err := m.feedsByHash()
	if err != nil {
		return nil, err
	}

	err = m.processRequest(ctx, reqs[0], feedsByHash)
	if err != nil {
		return nil, fmt.Errorf("refreshing feed at %s: %w", feedURL, err)
	}

	return m.loadMostRecent(feedURL)
}

func (m *Manager) request(feedURL string, headers map[string]string) error {
	serialized := serializeHeaders(headers)

	reqs, err := m.storage.ListFeedRequests(feedURL)
	if err != nil {
		return fmt.Errorf("listing feed requests: %w", err)
	}
	for _, req := range reqs {
		if req.Headers == serialized {
			return nil
		}
	}

	// New request, or new headers. Either way, not yet refreshed.
	err = m.storage.WriteFeedRequest(storage.FeedRequest{
		URL:     feedURL,
		Headers: serialized,
	})
	if err != nil {
		return fmt.Errorf("writing feed request: %w", err)
	}

	return nil
}

// Refreshes any feeds that might need refreshing.
func (m *Manager) Refresh(ctx context.Context) error {
	const op = "timetable.Manager.Refresh"
	log := m.log.With(zap.String("op", op))

	feedsByHash, err := m.feedsByHash()
	if err != nil {
		return err
	}

	// Check all requests for URLs in need of refreshing
	requests, err := m.storage.ListFeedRequests("")
	if err != nil {
		return fmt.Errorf("listing feed requests: %w", err)
	}

	errs := []error{}
	for _, req := range requests {
		if req.RefreshedAt.Before(time.Now().Add(-m.RefreshInterval)) {
			err = m.processRequest(ctx, req, feedsByHash)
			if err != nil {
				log.Warn("feed refresh failed", zap.String("url", req.URL), zap.Error(err))
				errs = append(errs, fmt.Errorf("refreshing feed at %s: %w", req.URL, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Get the hash of every feed in storage
func (m *Manager) feedsByHash() (map[string][]*storage.FeedMetadata, error) {
	feedsByHash := map[string][]*storage.FeedMetadata{}
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	for _, feed := range feeds {
		feedsByHash[feed.Hash] = append(feedsByHash[feed.Hash], feed)
	}
	return feedsByHash, nil
}

// Downloads a requested URL. If the data is already in storage, a
// copy may be made to ensure a FeedMetadata record with the hash and
// this URL exists. New FeedMetadata records are added to the
// feedByHash map passed in as arg.
func (m *Manager) processRequest(
	ctx context.Context,
	req storage.FeedRequest,
	feedByHash map[string][]*storage.FeedMetadata,
) error {
	log := m.log.With(zap.String("op", "timetable.Manager.processRequest"), zap.String("url", req.URL))

	headers, err := deserializeHeaders(req.Headers)
	if err != nil {
		return fmt.Errorf("deserializing headers: %w", err)
	}

	// Download the feed and compute its hash
	body, err := m.Downloader.Get(
		ctx,
		req.URL,
		headers,
		downloader.GetOptions{
			Cache:   false,
			Timeout: m.Timeout,
			MaxSize: m.MaxSize,
		},
	)
	if err != nil {
		return fmt.Errorf("downloading feed at %s: %w", req.URL, err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))

	// The data we just downloaded may already exist in storage.
	feeds := feedByHash[hash]
	if len(feeds) > 0 {
		found := false
		for _, feed := range feeds {
			if feed.URL == req.URL {
				found = true
				break
			}
		}
		if !found {
			// It's in storage, but for a different
			// URL. Add a metadata record for this URL.
			metadata := *feeds[0]
			metadata.URL = req.URL
			metadata.RetrievedAt = time.Now().UTC()

			feedByHash[hash] = append(feedByHash[hash], &metadata)

			err = m.storage.WriteFeedMetadata(&metadata)
			if err != nil {
				return fmt.Errorf("writing metadata: %w", err)
			}
			log.Info("feed already stored under another url", zap.String("hash", hash))
		}
	} else {
		// Hash doesn't exist in storage. Parse the feed.
		writer, err := m.storage.GetWriter(hash)
		if err != nil {
			return fmt.Errorf("getting writer: %w", err)
		}
		defer writer.Close()

		metadata, err := parse.ParseFeed(writer, body)
		if err != nil {

			// If the downloaded data is broken (parse
			// failed), we still mark the request as
			// refreshed.
			req.RefreshedAt = time.Now().UTC()
			reqErr := m.storage.WriteFeedRequest(req)
			if reqErr != nil {
				return errors.Join(
					fmt.Errorf("writing feed request: %w", reqErr),
					fmt.Errorf("parsing: %w", err),
				)
			}

			return fmt.Errorf("parsing: %w", err)
		}

		// And write the metadata
		metadata.Hash = hash
		metadata.URL = req.URL
		metadata.RetrievedAt = time.Now().UTC()

		feedByHash[hash] = append(feedByHash[hash], metadata)

		err = m.storage.WriteFeedMetadata(metadata)
		if err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}

		log.Info("feed loaded",
			zap.String("hash", hash),
			zap.Int("districts", metadata.DistrictCount),
			zap.Int("lines", metadata.LineCount),
			zap.Int("schedules", metadata.ScheduleCount),
		)
	}

	// Mark the request as refreshed.
	req.RefreshedAt = time.Now().UTC()
	err = m.storage.WriteFeedRequest(req)
	if err != nil {
		return fmt.Errorf("writing feed request: %w", err)
	}

	return nil
}

// Selects the most recently retrieved feed for the URL.
func (m *Manager) loadMostRecent(feedURL string) (*Schedule, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: feedURL})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	if len(feeds) == 0 {
		return nil, ErrNoActiveFeed
	}

	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})

	reader, err := m.storage.GetReader(feeds[0].Hash)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	return NewSchedule(reader, feeds[0]), nil
}

func serializeHeaders(headers map[string]string) string {
	var keys []string
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := []string{}
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", url.QueryEscape(k), url.QueryEscape(headers[k])))
	}
	return strings.Join(pairs, "&")
}

func deserializeHeaders(serialized string) (map[string]string, error) {
	headers := map[string]string{}
	if serialized == "" {
		return headers, nil
	}

	for _, pair := range strings.Split(serialized, "&") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header: %s", pair)
		}
		k, err := url.QueryUnescape(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid header: %s", pair)
		}
		v, err := url.QueryUnescape(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid header: %s", pair)
		}
		headers[k] = v
	}
	return headers, nil
}
