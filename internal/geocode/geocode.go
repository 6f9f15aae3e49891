// Package geocode resolves place names to coordinates with Nominatim.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/gominatim"
	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/fuelview/pkg/geo"
)

const (
	cacheExpiry  = 30 * time.Minute
	cacheCleanup = 90 * time.Minute
)

var ErrNotFound = errors.New("location not found")

// Place is a geocoding result.
type Place struct {
	Name  string
	Point geo.Point
}

// Nominatim geocodes with the OpenStreetMap Nominatim service and caches
// results by query.
type Nominatim struct {
	cache  *cache.Cache
	search func(q string) ([]gominatim.SearchResult, error)
}

func NewNominatim(server string) *Nominatim {
	gominatim.SetServer(server)
	return &Nominatim{
		cache: cache.New(cacheExpiry, cacheCleanup),
		search: func(q string) ([]gominatim.SearchResult, error) {
			qry := gominatim.SearchQuery{Q: q}
			return qry.Get()
		},
	}
}

// Geocode returns the best match for name.
func (n *Nominatim) Geocode(ctx context.Context, name string) (Place, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Place{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	if cached, ok := n.cache.Get(key); ok {
		return cached.(Place), nil
	}
	if err := ctx.Err(); err != nil {
		return Place{}, err
	}

	results, err := n.search(name)
	if err != nil {
		return Place{}, fmt.Errorf("geocoding error: %w", err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	place, err := toPlace(results[0])
	if err != nil {
		return Place{}, err
	}
	n.cache.Set(key, place, cache.DefaultExpiration)
	return place, nil
}

func toPlace(result gominatim.SearchResult) (Place, error) {
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("error parsing latitude: %w", err)
	}

	lng, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("error parsing longitude: %w", err)
	}

	return Place{Name: result.DisplayName, Point: geo.Point{Lat: lat, Lng: lng}}, nil
}
