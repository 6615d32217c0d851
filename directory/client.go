package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"warpcorp.dev/timetable"
	"warpcorp.dev/timetable/downloader"
	"warpcorp.dev/timetable/model"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultDistrictsTTL = 10 * time.Minute
	DefaultMaxSize      = 5 << 20 // 5 MB
)

type Options struct {
	Timeout      time.Duration
	DistrictsTTL time.Duration
	MaxSize      int
	Headers      map[string]string
}

// Client talks to the remote district directory and route search
// service. District lists are cached by the downloader, route
// searches never are.
type Client struct {
	baseURL    string
	downloader downloader.Downloader
	opts       Options
	log        *zap.Logger
}

func NewClient(log *zap.Logger, baseURL string, d downloader.Downloader, opts Options) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if d == nil {
		d = downloader.NewMemoryDownloader()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DistrictsTTL < 0 {
		opts.DistrictsTTL = 0
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		downloader: d,
		opts:       opts,
		log:        log,
	}
}

func (c *Client) Districts(ctx context.Context) ([]model.District, error) {
	const op = "directory.Client.Districts"

	body, err := c.downloader.Get(ctx, c.baseURL+"/districts", c.opts.Headers, downloader.GetOptions{
		Cache:    c.opts.DistrictsTTL > 0,
		CacheTTL: c.opts.DistrictsTTL,
		Timeout:  c.opts.Timeout,
		MaxSize:  c.opts.MaxSize,
	})
	if err != nil {
		c.log.Warn("district fetch failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to fetch districts: %w", timetable.ErrCollaboratorUnavailable, err)
	}

	var payload []DistrictDTO
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode districts: %w", timetable.ErrMalformedResponse, err)
	}

	return ToDistricts(payload), nil
}

func (c *Client) FindRoutes(ctx context.Context, start, end, date string) ([]model.MergedItinerary, error) {
	const op = "directory.Client.FindRoutes"
	log := c.log.With(
		zap.String("op", op),
		zap.String("start", start),
		zap.String("end", end),
		zap.String("date", date),
	)

	reqURL, err := c.buildRoutesURL(start, end, date)
	if err != nil {
		return nil, err
	}

	body, err := c.downloader.Get(ctx, reqURL, c.opts.Headers, downloader.GetOptions{
		Cache:   false,
		Timeout: c.opts.Timeout,
		MaxSize: c.opts.MaxSize,
	})
	if err != nil {
		log.Warn("route search failed", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to fetch routes: %w", timetable.ErrCollaboratorUnavailable, err)
	}

	var payload []MergedRouteDTO
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode routes: %w", timetable.ErrMalformedResponse, err)
	}

	its, err := ToItineraries(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", timetable.ErrMalformedResponse, err)
	}

	log.Debug("routes found", zap.Int("itineraries", len(its)))

	return its, nil
}

func (c *Client) buildRoutesURL(start, end, date string) (string, error) {
	u, err := url.Parse(c.baseURL + "/find-routes")
	if err != nil {
		return "", fmt.Errorf("parse directory base url: %w", err)
	}

	q := u.Query()
	q.Set("start", start)
	q.Set("end", end)
	q.Set("date", date)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
