// Package store owns the view state of a consumer and the station list it
// is derived from. Selectors are recomputed through the view cache; the only
// blocking operation is Refresh, which is coalesced across callers.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/fuelview/pkg/geo"
	"github.com/rubiojr/fuelview/pkg/pricing"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/rubiojr/fuelview/pkg/view"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRadiusKm = 5.0
	refreshKey      = "refresh"
)

// ErrRefresh wraps every failed refresh.
var ErrRefresh = errors.New("refresh failed")

type Store struct {
	repo  Repository
	log   *slog.Logger
	cache *view.Cache

	group   singleflight.Group
	waiting atomic.Int64

	mu          sync.RWMutex
	state       view.State
	averages    pricing.Index
	stats       map[station.FuelType]pricing.Stats
	snapshot    string
	lastRefresh time.Time
	lastErr     error
	threshold   float64
}

// Option configures a Store.
type Option func(*Store)

// WithCache shares a view cache between stores. Each store keys its entries
// by its own list identity, so stores never see each other's stations.
func WithCache(c *view.Cache) Option {
	return func(s *Store) {
		s.cache = c
	}
}

// WithRadius sets the initial search radius in kilometers.
func WithRadius(km float64) Option {
	return func(s *Store) {
		s.state.RadiusKm = km
	}
}

// WithFuelType sets the initially selected fuel type.
func WithFuelType(f station.FuelType) Option {
	return func(s *Store) {
		s.state.FuelType = f
	}
}

// WithThresholdRatio sets the ratio used to classify prices.
func WithThresholdRatio(r float64) Option {
	return func(s *Store) {
		s.threshold = r
	}
}

func New(repo Repository, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		log:       logger,
		averages:  pricing.Index{},
		stats:     map[station.FuelType]pricing.Stats{},
		threshold: pricing.DefaultThresholdRatio,
		state: view.State{
			Source:   uuid.NewString(),
			RadiusKm: DefaultRadiusKm,
			FuelType: station.DieselA,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = view.NewCache(view.DefaultCacheExpiry)
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s
}

// Refresh fetches a new station list and replaces the current one. Callers
// arriving while a fetch is in flight wait for it and share its outcome
// instead of starting another one. On failure the current list is kept and
// the error is recorded for Err.
func (s *Store) Refresh(ctx context.Context) error {
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		return nil, s.refresh(context.WithoutCancel(ctx))
	})
	s.waiting.Add(1)
	defer s.waiting.Add(-1)

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) refresh(ctx context.Context) error {
	s.log.Debug("refreshing stations")

	snap, err := s.repo.FetchStations(ctx)
	if err == nil && snap == nil {
		err = errors.New("empty snapshot")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRefresh, err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.log.Error("Error refreshing stations", "error", err)
		return err
	}

	stats := pricing.ComputeStats(snap.Stations)
	averages := pricing.IndexFromStats(stats)

	s.mu.Lock()
	s.state.Stations = snap.Stations
	s.state.Version++
	s.averages = averages
	s.stats = stats
	s.snapshot = snap.Date
	s.lastRefresh = time.Now()
	s.lastErr = nil
	version := s.state.Version
	s.mu.Unlock()

	s.log.Info("Stations refreshed", "stations", len(snap.Stations), "version", version, "date", snap.Date)
	return nil
}

// Err returns the error of the last refresh, or nil if it succeeded.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store) SetSearchText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SearchText = text
}

func (s *Store) SetRadius(km float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RadiusKm = km
}

func (s *Store) SetShowAll(all bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ShowAll = all
}

func (s *Store) SetFuelType(f station.FuelType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.FuelType = f
}

// SetUserLocation replaces the user location; nil clears it. The last call wins.
func (s *Store) SetUserLocation(p *geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.state.UserLocation = nil
		return
	}
	loc := *p
	s.state.UserLocation = &loc
}

// State returns a copy of the current view state.
func (s *Store) State() view.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.UserLocation != nil {
		loc := *st.UserLocation
		st.UserLocation = &loc
	}
	return st
}

// Version is incremented on every successful refresh.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Version
}

// Matches returns the filtered stations with their distances.
func (s *Store) Matches() []view.Match {
	return s.cache.Matches(s.State())
}

// Stations returns the filtered stations in display order.
func (s *Store) Stations() []station.Station {
	return view.Stations(s.Matches())
}

// Rows returns the filtered stations joined with the selected fuel price and
// its classification.
func (s *Store) Rows() []view.Row {
	return s.Derive(nil)
}

// Derive computes rows for the current station list and a variation of the
// stored view state. The stored state is not modified, which lets several
// consumers (HTTP requests) share one list and one cache.
func (s *Store) Derive(modify func(*view.State)) []view.Row {
	s.mu.RLock()
	st := s.state
	idx, threshold := s.averages, s.threshold
	s.mu.RUnlock()

	if modify != nil {
		modify(&st)
	}
	return view.RowsWithRatio(s.cache.Matches(st), st.FuelType, idx, threshold)
}

// Averages returns the mean price per fuel type of the current list.
func (s *Store) Averages() pricing.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.averages
}

// Stats returns min/max/mean per fuel type of the current list.
func (s *Store) Stats() map[station.FuelType]pricing.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// SnapshotDate is the publication date reported by the last successful fetch.
func (s *Store) SnapshotDate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// LastRefresh is the time of the last successful refresh.
func (s *Store) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// Cache returns the view cache used by the store.
func (s *Store) Cache() *view.Cache {
	return s.cache
}

// Watch refreshes immediately and then every interval until ctx is done.
// Failures are logged and recorded for Err; the loop keeps going.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err == nil {
			s.log.Info("Price update completed successfully")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
