package dynode

import (
	"encoding/json"
	"time"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/walletbase/walletd/cache"
)

// CachedResponse is the stored upstream response. ExpiresAt carries the
// rule TTL into the local layer, which has no per-entry expiry.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	ExpiresAt   int64  `json:"expires_at"`
}

// ResponseCache layers a process-local fastcache in front of the shared
// redis cache. The local layer is best-effort and sized; redis is the
// source of truth between processes.
type ResponseCache struct {
	local  *fastcache.Cache
	shared *cache.Cacher
	now    func() time.Time
}

func NewResponseCache(shared *cache.Cacher, localBytes int) *ResponseCache {
	return &ResponseCache{
		local:  fastcache.New(localBytes),
		shared: shared,
		now:    time.Now,
	}
}

func (c *ResponseCache) Get(key string) (CachedResponse, bool) {
	if data := c.local.Get(nil, []byte(key)); len(data) > 0 {
		if resp, ok := c.decode(data); ok {
			return resp, true
		}
		c.local.Del([]byte(key))
	}
	if c.shared == nil {
		return CachedResponse{}, false
	}
	data, err := c.shared.GetBytes(cache.DynodeResponse(key))
	if err != nil {
		return CachedResponse{}, false
	}
	resp, ok := c.decode(data)
	if ok {
		c.local.Set([]byte(key), data)
	}
	return resp, ok
}

// Put stores the response in both layers. Failures are logged, never
// surfaced: cache writes are best-effort.
func (c *ResponseCache) Put(key string, resp CachedResponse, ttl time.Duration) {
	resp.ExpiresAt = c.now().Add(ttl).Unix()
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Warnw("cache encode failed", "key", key, "err", err)
		return
	}
	c.local.Set([]byte(key), data)
	if c.shared == nil {
		return
	}
	if err := c.shared.SetTTL(cache.DynodeResponse(key), json.RawMessage(data), ttl); err != nil {
		logger.Warnw("cache write failed", "key", key, "err", err)
	}
}

func (c *ResponseCache) decode(data []byte) (CachedResponse, bool) {
	var resp CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return CachedResponse{}, false
	}
	if resp.ExpiresAt != 0 && c.now().Unix() >= resp.ExpiresAt {
		return CachedResponse{}, false
	}
	return resp, true
}
