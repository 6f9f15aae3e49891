// Package server exposes a store over HTTP. Every request derives its own
// view from the shared station list, so concurrent consumers never see each
// other's filters.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/httprate"
	"github.com/rubiojr/fuelview/internal/geocode"
	"github.com/rubiojr/fuelview/internal/searchlog"
	"github.com/rubiojr/fuelview/internal/store"
	"github.com/rubiojr/fuelview/pkg/geo"
	"github.com/rubiojr/fuelview/pkg/pricing"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/rubiojr/fuelview/pkg/view"
)

const (
	defaultRateLimit    = 20
	defaultRateWindow   = time.Minute
	defaultPopularLimit = 100
	shutdownTimeout     = 10 * time.Second
)

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (geocode.Place, error)
}

type Server struct {
	store    *store.Store
	log      *httplog.Logger
	geocoder Geocoder
	searches *searchlog.Storage
	radiusKm float64

	rateLimit  int
	rateWindow time.Duration
}

type Option func(*Server)

// WithGeocoder enables the location query parameter.
func WithGeocoder(g Geocoder) Option {
	return func(s *Server) {
		s.geocoder = g
	}
}

// WithSearchLog records search locations and enables /popular.
func WithSearchLog(l *searchlog.Storage) Option {
	return func(s *Server) {
		s.searches = l
	}
}

// WithDefaultRadius sets the radius used when a request has none.
func WithDefaultRadius(km float64) Option {
	return func(s *Server) {
		s.radiusKm = km
	}
}

// WithRateLimit limits requests per client IP.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = requests
		s.rateWindow = window
	}
}

func New(st *store.Store, logger *httplog.Logger, opts ...Option) *Server {
	s := &Server{
		store:      st,
		log:        logger,
		radiusKm:   store.DefaultRadiusKm,
		rateLimit:  defaultRateLimit,
		rateWindow: defaultRateWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = httplog.NewLogger("fuelview", httplog.Options{
			LogLevel: slog.LevelError,
			Concise:  true,
		})
	}
	return s
}

// Handler returns the router with the middleware stack installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))

	r.Get("/stations", s.handleStations)
	r.Get("/averages", s.handleAverages)
	r.Get("/status", s.handleStatus)
	r.Post("/refresh", s.handleRefresh)
	r.Get("/popular", s.handlePopular)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type stationsResponse struct {
	Fuel     station.FuelType `json:"fuel"`
	Query    string           `json:"query,omitempty"`
	Place    string           `json:"place,omitempty"`
	Location *geo.Point       `json:"location,omitempty"`
	RadiusKm float64          `json:"radius_km"`
	ShowAll  bool             `json:"show_all"`
	Version  uint64           `json:"version"`
	Date     string           `json:"date,omitempty"`
	Average  float64          `json:"average,omitempty"`
	Count    int              `json:"count"`
	Stations []view.Row       `json:"stations"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	fuel := s.store.State().FuelType
	if v := query.Get("fuel"); v != "" {
		f, err := station.ParseFuelType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fuel = f
	}

	// Set default radius if not provided or invalid
	radius := s.radiusKm
	if v := query.Get("radius"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			radius = f
		}
	}

	var showAll bool
	if v := query.Get("all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid all value")
			return
		}
		showAll = b
	}

	limit, err := parseLimit(query.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	place, loc, status, err := s.requestLocation(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	resp := stationsResponse{
		Fuel:     fuel,
		Query:    query.Get("q"),
		Place:    place,
		Location: loc,
		RadiusKm: radius,
		ShowAll:  showAll,
	}

	if refreshErr := s.store.Err(); refreshErr != nil {
		if s.store.Version() == 0 {
			writeError(w, http.StatusServiceUnavailable, refreshErr.Error())
			return
		}
		resp.Error = refreshErr.Error()
	}

	rows := s.store.Derive(func(st *view.State) {
		st.FuelType = fuel
		st.SearchText = resp.Query
		st.RadiusKm = radius
		st.ShowAll = showAll
		st.UserLocation = loc
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	resp.Version = s.store.Version()
	resp.Date = s.store.SnapshotDate()
	resp.Average = s.store.Averages()[fuel]
	resp.Count = len(rows)
	resp.Stations = rows
	httplog.LogEntrySetField(r.Context(), "stations", slog.IntValue(len(rows)))

	if loc != nil && s.searches != nil {
		if err := s.searches.LogSearchLocation(r.Context(), *loc, radius); err != nil {
			s.log.Error("Error logging search location", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// requestLocation resolves the user location of a request. A location name
// takes precedence over coordinates; neither means no location.
func (s *Server) requestLocation(r *http.Request) (string, *geo.Point, int, error) {
	query := r.URL.Query()

	if name := query.Get("location"); name != "" {
		if s.geocoder == nil {
			return "", nil, http.StatusBadRequest, errors.New("location lookup is not available")
		}
		place, err := s.geocoder.Geocode(r.Context(), name)
		if errors.Is(err, geocode.ErrNotFound) {
			return "", nil, http.StatusNotFound, err
		}
		if err != nil {
			s.log.Error("Error geocoding location", "location", name, "error", err)
			return "", nil, http.StatusBadGateway, err
		}
		p := place.Point
		return place.Name, &p, http.StatusOK, nil
	}

	latStr, lngStr := query.Get("lat"), query.Get("lng")
	if latStr == "" && lngStr == "" {
		return "", nil, http.StatusOK, nil
	}
	if latStr == "" || lngStr == "" {
		return "", nil, http.StatusBadRequest, errors.New("lat and lng must be given together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return "", nil, http.StatusBadRequest, errors.New("invalid latitude value")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return "", nil, http.StatusBadRequest, errors.New("invalid longitude value")
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return "", nil, http.StatusBadRequest, errors.New("coordinates out of range")
	}
	return "", &p, http.StatusOK, nil
}

type fuelAverage struct {
	Fuel  station.FuelType `json:"fuel"`
	Label string           `json:"label"`
	pricing.Stats
}

func (s *Server) handleAverages(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	fuels := make([]fuelAverage, 0, len(stats))
	for _, f := range station.AllFuelTypes() {
		st, ok := stats[f]
		if !ok {
			continue
		}
		fuels = append(fuels, fuelAverage{Fuel: f, Label: f.Label(), Stats: st})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.store.Version(),
		"date":    s.store.SnapshotDate(),
		"fuels":   fuels,
	})
}

type statusResponse struct {
	Version     uint64     `json:"version"`
	Stations    int        `json:"stations"`
	Date        string     `json:"date,omitempty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (s *Server) status() statusResponse {
	st := s.store.State()
	resp := statusResponse{
		Version:  st.Version,
		Stations: len(st.Stations),
		Date:     s.store.SnapshotDate(),
	}
	if t := s.store.LastRefresh(); !t.IsZero() {
		resp.LastRefresh = &t
	}
	if err := s.store.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, s.status())
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	if s.searches == nil {
		writeError(w, http.StatusNotFound, "search log is disabled")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultPopularLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	popular, err := s.searches.GetPopularLocationHeatmap(r.Context(), limit)
	if err != nil {
		s.log.Error("Error getting popular locations", "error", err)
		writeError(w, http.StatusInternalServerError, "Error getting popular locations")
		return
	}
	if popular == nil {
		popular = []searchlog.PopularLocation{}
	}
	writeJSON(w, http.StatusOK, popular)
}

func parseLimit(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid limit value")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
