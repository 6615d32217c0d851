package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Caches downloaded files in redis, so that several processes share
// collaborator responses. Cache failures are logged and fall through
// to a plain download.
type Redis struct {
	redis *redis.Client
	log   *zap.Logger
}

func NewRedis(log *zap.Logger, client *redis.Client) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{redis: client, log: log}
}

func (d *Redis) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	const op = "downloader.Redis.Get"
	log := d.log.With(zap.String("op", op), zap.String("url", url))

	key := cacheKey(url)

	if options.Cache {
		data, err := d.redis.Get(ctx, key).Bytes()
		if err == nil {
			log.Debug("cache hit")
			return data, nil
		}
		if !errors.Is(err, redis.Nil) {
			log.Warn("redis cache read failed", zap.Error(err))
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if options.Cache && options.CacheTTL > 0 {
		if err := d.redis.Set(ctx, key, body, options.CacheTTL).Err(); err != nil {
			log.Warn("redis cache write failed", zap.Error(err))
		}
	}

	return body, nil
}
