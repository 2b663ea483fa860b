package mapbox

import (
	"container/list"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/jonboulle/clockwork"
)

// DefaultFailureTTL is how long a failed lookup is answered from cache
// before Mapbox is asked again.
const DefaultFailureTTL = time.Minute

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache. Failed
// lookups are remembered for a short TTL so a refresh loop does not hit
// the API for the same failing query on every tick.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lruCache
	metrics *observability.Metrics

	clock       clockwork.Clock
	failureTTL  time.Duration
	maxFailures int
	failMu      sync.Mutex
	failures    map[string]failure
}

type failure struct {
	err   error
	until time.Time
}

// CacheOption configures a CachedGeocoder.
type CacheOption func(*CachedGeocoder)

// WithFailureTTL sets how long failures are cached. Zero disables it.
func WithFailureTTL(d time.Duration) CacheOption {
	return func(c *CachedGeocoder) { c.failureTTL = d }
}

// WithCacheClock sets the clock used to expire cached failures.
func WithCacheClock(clock clockwork.Clock) CacheOption {
	return func(c *CachedGeocoder) { c.clock = clock }
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics, opts ...CacheOption) *CachedGeocoder {
	c := &CachedGeocoder{
		inner:       inner,
		cache:       newLRUCache(maxEntries),
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		failureTTL:  DefaultFailureTTL,
		maxFailures: max(maxEntries, 1),
		failures:    make(map[string]failure),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := "fwd:" + strings.ToLower(strings.TrimSpace(query))
	return c.lookup(ctx, key, "forward", func() (domain.GeocodingResult, error) {
		return c.inner.ForwardGeocode(ctx, query)
	})
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeocodingResult, error) {
	key := "rev:" + strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lng, 'f', 5, 64)
	return c.lookup(ctx, key, "reverse", func() (domain.GeocodingResult, error) {
		return c.inner.ReverseGeocode(ctx, lat, lng)
	})
}

func (c *CachedGeocoder) lookup(ctx context.Context, key, method string, fetch func() (domain.GeocodingResult, error)) (domain.GeocodingResult, error) {
	if result, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues(method, "hit").Inc()
		return result, nil
	}
	if f, ok := c.recentFailure(key); ok {
		c.metrics.GeocodeCache.WithLabelValues(method, "failure_hit").Inc()
		return domain.GeocodingResult{}, f.err
	}
	c.metrics.GeocodeCache.WithLabelValues(method, "miss").Inc()

	result, err := fetch()
	if err != nil {
		// A cancelled caller says nothing about the query itself.
		if ctx.Err() == nil {
			c.rememberFailure(key, err)
		}
		return result, err
	}
	// Empty results are not cached so a later refresh can retry them.
	if result.FormattedAddress != "" {
		c.cache.put(key, result)
	}
	return result, nil
}

func (c *CachedGeocoder) recentFailure(key string) (failure, bool) {
	c.failMu.Lock()
	defer c.failMu.Unlock()

	f, ok := c.failures[key]
	if !ok {
		return failure{}, false
	}
	if !c.clock.Now().Before(f.until) {
		delete(c.failures, key)
		return failure{}, false
	}
	return f, true
}

func (c *CachedGeocoder) rememberFailure(key string, err error) {
	if c.failureTTL <= 0 {
		return
	}
	c.failMu.Lock()
	defer c.failMu.Unlock()

	now := c.clock.Now()
	if len(c.failures) >= c.maxFailures {
		for k, f := range c.failures {
			if !now.Before(f.until) {
				delete(c.failures, k)
			}
		}
		if len(c.failures) >= c.maxFailures {
			return
		}
	}
	c.failures[key] = failure{err: err, until: now.Add(c.failureTTL)}
}

// lruCache is a thread-safe LRU of GeocodingResults keyed by query.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type entry struct {
	key   string
	value domain.GeocodingResult
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (c *lruCache) put(key string, value domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
