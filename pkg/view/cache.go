package view

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/fuelview/pkg/station"
)

const (
	DefaultCacheExpiry = 10 * time.Minute
	cacheCleanupFactor = 3
)

// Cache memoizes Apply. Entries are keyed by every State field that changes
// the result plus the station list Source and Version, so a refreshed list is
// never served from an older entry even when the search text is unchanged,
// and lists of different sources never share entries.
type Cache struct {
	mu       sync.Mutex
	entries  *cache.Cache
	versions map[string]uint64
	misses   int
}

// NewCache creates a Cache whose entries expire after expiry.
func NewCache(expiry time.Duration) *Cache {
	if expiry <= 0 {
		expiry = DefaultCacheExpiry
	}
	return &Cache{
		entries:  cache.New(expiry, cacheCleanupFactor*expiry),
		versions: map[string]uint64{},
	}
}

// Matches returns Apply(s), computing it only when no entry exists for s.
// The returned slice is shared with later callers and must not be modified.
func (c *Cache) Matches(s State) []Match {
	c.mu.Lock()
	defer c.mu.Unlock()

	latest, known := c.versions[s.Source]
	switch {
	case known && s.Version < latest:
		// superseded list: answer without caching
		c.misses++
		return Apply(s)
	case !known || s.Version > latest:
		c.dropSource(s.Source)
		c.versions[s.Source] = s.Version
	}

	key := cacheKey(s)
	if cached, found := c.entries.Get(key); found {
		return cached.([]Match)
	}

	matches := Apply(s)
	c.misses++
	c.entries.Set(key, matches, cache.DefaultExpiration)
	return matches
}

// Stations is Matches projected to stations.
func (c *Cache) Stations(s State) []station.Station {
	return Stations(c.Matches(s))
}

// Misses returns how many times the pipeline had to run.
func (c *Cache) Misses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Flush()
	c.versions = map[string]uint64{}
}

// dropSource deletes the entries of every older version of source.
func (c *Cache) dropSource(source string) {
	prefix := keyPrefix(source)
	for key := range c.entries.Items() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Delete(key)
		}
	}
}

func keyPrefix(source string) string {
	return "view_" + strconv.Quote(source) + "_"
}

func cacheKey(s State) string {
	loc := "none"
	if s.UserLocation != nil {
		loc = strconv.FormatFloat(s.UserLocation.Lat, 'g', -1, 64) + "," +
			strconv.FormatFloat(s.UserLocation.Lng, 'g', -1, 64)
	}
	return fmt.Sprintf("%s%d_%q_%s_%s_%t_%s",
		keyPrefix(s.Source),
		s.Version,
		s.SearchText,
		s.FuelType,
		strconv.FormatFloat(s.RadiusKm, 'g', -1, 64),
		s.ShowAll,
		loc,
	)
}
