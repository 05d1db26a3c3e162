// Package cache holds the bounded response cache: identical prompts with
// the same model set and mode hit a TTL- and capacity-evicted entry, and
// concurrent identical misses compute once via singleflight — duplicate
// computation is safe, corruption is not.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// Config tunes the response cache.
type Config struct {
	// TTL is how long an entry stays valid.
	TTL time.Duration `yaml:"ttl"`
	// Capacity bounds the entry count; the oldest entry is evicted first.
	Capacity int `yaml:"capacity"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TTL: 5 * time.Minute, Capacity: 256}
}

// Metrics tracks cache statistics.
type Metrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type entry struct {
	key      string
	response *models.SynthesizedResponse
	storedAt time.Time
}

// ResponseCache caches synthesized responses.
type ResponseCache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*list.Element
	order   *list.List // FIFO: front = oldest
	group   singleflight.Group
	metrics Metrics
}

// New creates a response cache.
func New(cfg Config) *ResponseCache {
	if cfg.Capacity <= 0 {
		cfg = DefaultConfig()
	}
	return &ResponseCache{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Key derives the deterministic cache key for a request: prompt, enabled
// model set, mode and strategy override all participate.
func Key(req *models.Request) string {
	enabled := req.EnabledModelIDs()
	sort.Strings(enabled)
	payload := struct {
		Prompt   string            `json:"prompt"`
		Models   []string          `json:"models"`
		Mode     models.Mode       `json:"mode"`
		Strategy models.StrategyID `json:"strategy"`
	}{req.Prompt, enabled, req.Mode, req.StrategyOverride}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Get returns a live cached response.
func (c *ResponseCache) Get(key string) (*models.SynthesizedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.metrics.Misses, 1)
		return nil, false
	}
	ent := el.Value.(*entry)
	if time.Since(ent.storedAt) > c.cfg.TTL {
		c.removeLocked(el)
		atomic.AddInt64(&c.metrics.Misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.metrics.Hits, 1)
	return ent.response, true
}

// Put stores a response, evicting the oldest entry on overflow.
func (c *ResponseCache) Put(key string, resp *models.SynthesizedResponse) {
	now := time.Now()
	resp.CachedAt = &now

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).response = resp
		el.Value.(*entry).storedAt = now
		return
	}

	for c.order.Len() >= c.cfg.Capacity {
		c.removeLocked(c.order.Front())
		atomic.AddInt64(&c.metrics.Evictions, 1)
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, response: resp, storedAt: now})
}

// Do runs compute once per key across concurrent callers, returning the
// shared result to all of them. The result is cached on success.
func (c *ResponseCache) Do(key string, compute func() (*models.SynthesizedResponse, error)) (*models.SynthesizedResponse, error) {
	if resp, ok := c.Get(key); ok {
		return resp, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.Get(key); ok {
			return resp, nil
		}
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SynthesizedResponse), nil
}

// Snapshot returns current cache metrics.
func (c *ResponseCache) Snapshot() Metrics {
	return Metrics{
		Hits:      atomic.LoadInt64(&c.metrics.Hits),
		Misses:    atomic.LoadInt64(&c.metrics.Misses),
		Evictions: atomic.LoadInt64(&c.metrics.Evictions),
	}
}

// Len returns the current entry count.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *ResponseCache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	delete(c.entries, ent.key)
	c.order.Remove(el)
}
