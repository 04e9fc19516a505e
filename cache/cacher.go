// Package cache wraps the redis client with the typed CacheKey family,
// pub/sub publication and a single-flighted get-or-set.
package cache

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/walleterrors"
)

var logger = log.NewModuleLogger("cache")

type Cacher struct {
	client *redis.Client
	group  singleflight.Group
}

func New(url string) (*Cacher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping().Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return &Cacher{client: client}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client) *Cacher {
	return &Cacher{client: client}
}

func (c *Cacher) Close() error { return c.client.Close() }

// Set writes value under key with the key's TTL.
func (c *Cacher) Set(key CacheKey, value interface{}) error {
	return c.SetTTL(key, value, key.TTL())
}

// SetTTL writes value with an explicit TTL override. A zero TTL stores
// without expiration.
func (c *Cacher) SetTTL(key CacheKey, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return errors.Wrapf(c.client.Set(key.String(), data, ttl).Err(), "set %s", key)
}

// SetAndPublish atomically writes value and publishes it on the channel
// named by the key.
func (c *Cacher) SetAndPublish(key CacheKey, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(key.String(), data, key.TTL())
	pipe.Publish(key.String(), data)
	_, err = pipe.Exec()
	return errors.Wrapf(err, "set+publish %s", key)
}

// Publish publishes value on the channel named by the key without
// storing anything.
func (c *Cacher) Publish(key CacheKey, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return errors.Wrapf(c.client.Publish(key.String(), data).Err(), "publish %s", key)
}

// Get reads key into out. Absence is walleterrors.KindNotFound, not a
// transport error: callers commonly fall through to a source.
func (c *Cacher) Get(key CacheKey, out interface{}) error {
	data, err := c.client.Get(key.String()).Bytes()
	if err == redis.Nil {
		return walleterrors.NotFound(key.String())
	}
	if err != nil {
		return errors.Wrapf(err, "get %s", key)
	}
	return errors.Wrapf(json.Unmarshal(data, out), "unmarshal %s", key)
}

// GetBytes reads the raw stored bytes.
func (c *Cacher) GetBytes(key CacheKey) ([]byte, error) {
	data, err := c.client.Get(key.String()).Bytes()
	if err == redis.Nil {
		return nil, walleterrors.NotFound(key.String())
	}
	return data, errors.Wrapf(err, "get %s", key)
}

// MSet writes a batch of key/value pairs, each with its own TTL.
func (c *Cacher) MSet(pairs map[CacheKey]interface{}) error {
	pipe := c.client.TxPipeline()
	for key, value := range pairs {
		data, err := json.Marshal(value)
		if err != nil {
			return errors.Wrapf(err, "marshal %s", key)
		}
		pipe.Set(key.String(), data, key.TTL())
	}
	_, err := pipe.Exec()
	return errors.Wrap(err, "mset")
}

// MGet reads a batch of keys. Missing keys yield nil entries.
func (c *Cacher) MGet(keys []CacheKey) ([][]byte, error) {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	values, err := c.client.MGet(names...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "mget")
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// GetOrSet returns the cached value, or invokes fetch, caches its result
// and returns it. Concurrent cold-cache callers share one fetch.
func (c *Cacher) GetOrSet(key CacheKey, out interface{}, fetch func() (interface{}, error)) error {
	if err := c.Get(key, out); err == nil {
		return nil
	} else if !walleterrors.IsNotFound(err) {
		return err
	}
	data, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		value, err := fetch()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s", key)
		}
		// Cache writes are best-effort.
		if err := c.client.Set(key.String(), raw, key.TTL()).Err(); err != nil {
			logger.Warnw("cache fill failed", "key", key.String(), "err", err)
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data.([]byte), out), "unmarshal %s", key)
}

// Increment bumps the counter at key, setting the family TTL on first use.
func (c *Cacher) Increment(key CacheKey) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(key.String())
	pipe.Expire(key.String(), key.TTL())
	if _, err := pipe.Exec(); err != nil {
		return 0, errors.Wrapf(err, "increment %s", key)
	}
	return incr.Val(), nil
}

// Counter reads the current counter value; absent counters read as zero.
func (c *Cacher) Counter(key CacheKey) (int64, error) {
	n, err := c.client.Get(key.String()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, errors.Wrapf(err, "counter %s", key)
}

// Subscribe opens a pub/sub subscription on the given channels.
func (c *Cacher) Subscribe(channels ...string) *redis.PubSub {
	return c.client.Subscribe(channels...)
}
