package downloader

import (
	"context"
	"sync"
	"time"
)

// Caches downloaded files in memory
type MemoryDownloader struct {
	mutex sync.Mutex
	cache map[string]downloaderCacheEntry

	TimeNow func() time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   make(map[string]downloaderCacheEntry),
		TimeNow: time.Now,
	}
}

type downloaderCacheEntry struct {
	data       []byte
	expiration time.Time
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	key := cacheKey(url)

	if options.Cache {
		d.mutex.Lock()
		entry, ok := d.cache[key]
		d.mutex.Unlock()

		if ok && entry.expiration.After(d.TimeNow()) {
			return entry.data, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache && options.CacheTTL > 0 {
		d.mutex.Lock()
		d.cache[key] = downloaderCacheEntry{
			data:       body,
			expiration: d.TimeNow().Add(options.CacheTTL),
		}
		d.mutex.Unlock()
	}

	return body, nil
}

// Drops cached entries that have expired.
func (d *MemoryDownloader) Evict() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	now := d.TimeNow()
	evicted := 0
	for k, entry := range d.cache {
		if !entry.expiration.After(now) {
			delete(d.cache, k)
			evicted++
		}
	}
	return evicted
}
