package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/rubiojr/fuelview/internal/geocode"
	"github.com/rubiojr/fuelview/internal/searchlog"
	"github.com/rubiojr/fuelview/internal/store"
	"github.com/rubiojr/fuelview/pkg/geo"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var home = geo.Point{Lat: 40.4168, Lng: -3.7038}

func north(km float64) *geo.Point {
	return &geo.Point{Lat: home.Lat + km/111.2, Lng: home.Lng}
}

type repo struct {
	stations []station.Station
	err      error
	calls    atomic.Int64
}

func (r *repo) FetchStations(context.Context) (*store.Snapshot, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &store.Snapshot{Date: "19/10/2026 10:21:32", Stations: r.stations}, nil
}

type geocoder map[string]geo.Point

func (g geocoder) Geocode(_ context.Context, name string) (geocode.Place, error) {
	p, ok := g[name]
	if !ok {
		return geocode.Place{}, fmt.Errorf("%w: %s", geocode.ErrNotFound, name)
	}
	return geocode.Place{Name: name + ", Spain", Point: p}, nil
}

func fixture() []station.Station {
	mk := func(id, address string, loc *geo.Point, diesel float64) station.Station {
		return station.Station{
			ID:           id,
			Name:         "Station " + id,
			Address:      address,
			Municipality: "Madrid",
			Location:     loc,
			Prices:       map[station.FuelType]float64{station.DieselA: diesel},
		}
	}
	return []station.Station{
		mk("far", "Calle de Alcala 300", north(20), 1.60),
		mk("near", "Calle Mayor 1", north(1), 1.40),
		mk("mid", "Gran Via 10", north(3), 1.50),
	}
}

func testLogger() *httplog.Logger {
	return httplog.NewLogger("fuelview-test", httplog.Options{
		LogLevel: slog.LevelError,
		Concise:  true,
	})
}

func newTestServer(t *testing.T, r *repo, opts ...Option) (*Server, *store.Store) {
	t.Helper()
	st := store.New(r, nil)
	if r.err == nil {
		require.NoError(t, st.Refresh(context.Background()))
	}
	opts = append([]Option{WithRateLimit(1000, time.Minute)}, opts...)
	return New(st, testLogger(), opts...), st
}

type stationsBody struct {
	Fuel     string  `json:"fuel"`
	Place    string  `json:"place"`
	RadiusKm float64 `json:"radius_km"`
	Version  uint64  `json:"version"`
	Average  float64 `json:"average"`
	Count    int     `json:"count"`
	Error    string  `json:"error"`
	Stations []struct {
		Station struct {
			ID string `json:"id"`
		} `json:"station"`
		DistanceMeters float64 `json:"distance_meters"`
		Price          float64 `json:"price"`
		HasPrice       bool    `json:"has_price"`
		Deviation      string  `json:"deviation"`
	} `json:"stations"`
}

func (b stationsBody) ids() []string {
	out := make([]string, len(b.Stations))
	for i, s := range b.Stations {
		out[i] = s.Station.ID
	}
	return out
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStationsWithoutLocation(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()})
	rec := get(t, srv.Handler(), "/stations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[stationsBody](t, rec)
	assert.Equal(t, []string{"far", "near", "mid"}, body.ids())
	assert.Equal(t, "dieselA", body.Fuel)
	assert.Equal(t, uint64(1), body.Version)
	assert.InDelta(t, 1.50, body.Average, 1e-9)
}

func TestStationsRadiusAndClassification(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()})
	h := srv.Handler()

	body := decode[stationsBody](t, get(t, h, "/stations?lat=40.4168&lng=-3.7038"))
	assert.Equal(t, []string{"near", "mid"}, body.ids())
	assert.Equal(t, 5.0, body.RadiusKm)
	require.Len(t, body.Stations, 2)
	assert.Equal(t, "cheap", body.Stations[0].Deviation)
	assert.Equal(t, "typical", body.Stations[1].Deviation)
	assert.InDelta(t, 1000, body.Stations[0].DistanceMeters, 10)

	body = decode[stationsBody](t, get(t, h, "/stations?lat=40.4168&lng=-3.7038&radius=50"))
	assert.Equal(t, []string{"near", "mid", "far"}, body.ids())
	assert.Equal(t, "expensive", body.Stations[2].Deviation)

	body = decode[stationsBody](t, get(t, h, "/stations?lat=40.4168&lng=-3.7038&radius=0.1"))
	assert.Equal(t, []string{"near", "mid", "far"}, body.ids(), "nothing in range falls back to every station")

	body = decode[stationsBody](t, get(t, h, "/stations?lat=40.4168&lng=-3.7038&all=true&limit=1"))
	assert.Equal(t, []string{"near"}, body.ids())

	body = decode[stationsBody](t, get(t, h, "/stations?lat=40.4168&lng=-3.7038&radius=nope"))
	assert.Equal(t, 5.0, body.RadiusKm, "invalid radius uses the default")
}

func TestStationsSearch(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()})
	body := decode[stationsBody](t, get(t, srv.Handler(), "/stations?q=alcala&lat=40.4168&lng=-3.7038"))
	assert.Equal(t, []string{"far"}, body.ids())
}

func TestStationsFuel(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()})
	body := decode[stationsBody](t, get(t, srv.Handler(), "/stations?fuel=lpg"))
	assert.Equal(t, "lpg", body.Fuel)
	require.Len(t, body.Stations, 3)
	for _, s := range body.Stations {
		assert.False(t, s.HasPrice)
		assert.Equal(t, "typical", s.Deviation)
	}
}

func TestStationsRequestsDoNotShareState(t *testing.T) {
	srv, st := newTestServer(t, &repo{stations: fixture()})
	h := srv.Handler()

	get(t, h, "/stations?q=mayor&lat=40.4168&lng=-3.7038&fuel=lpg")
	state := st.State()
	assert.Empty(t, state.SearchText)
	assert.Nil(t, state.UserLocation)
	assert.Equal(t, station.DieselA, state.FuelType)
}

func TestStationsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()})
	h := srv.Handler()

	tests := []string{
		"/stations?lat=north&lng=-3.7",
		"/stations?lat=40.4&lng=west",
		"/stations?lat=40.4",
		"/stations?lat=95&lng=0",
		"/stations?fuel=kerosene",
		"/stations?all=maybe",
		"/stations?limit=-2",
		"/stations?location=Madrid",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			rec := get(t, h, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestStationsByLocationName(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()},
		WithGeocoder(geocoder{"Sol": home}))
	h := srv.Handler()

	rec := get(t, h, "/stations?location=Sol")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[stationsBody](t, rec)
	assert.Equal(t, "Sol, Spain", body.Place)
	assert.Equal(t, []string{"near", "mid"}, body.ids())

	rec = get(t, h, "/stations?location=Atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStationsUnavailableBeforeFirstRefresh(t *testing.T) {
	r := &repo{err: errors.New("connection refused")}
	srv, st := newTestServer(t, r)
	require.Error(t, st.Refresh(context.Background()))

	rec := get(t, srv.Handler(), "/stations")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "connection refused")
}

func TestStationsKeepServingAfterFailedRefresh(t *testing.T) {
	r := &repo{stations: fixture()}
	srv, st := newTestServer(t, r)

	r.err = errors.New("connection reset")
	require.Error(t, st.Refresh(context.Background()))

	rec := get(t, srv.Handler(), "/stations")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[stationsBody](t, rec)
	assert.Len(t, body.Stations, 3)
	assert.Contains(t, body.Error, "connection reset")
}

func TestAverages(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()})
	rec := get(t, srv.Handler(), "/averages")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Version uint64 `json:"version"`
		Date    string `json:"date"`
		Fuels   []struct {
			Fuel  string  `json:"fuel"`
			Label string  `json:"label"`
			Count int     `json:"count"`
			Min   float64 `json:"min"`
			Max   float64 `json:"max"`
			Mean  float64 `json:"mean"`
		} `json:"fuels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "19/10/2026 10:21:32", body.Date)
	require.Len(t, body.Fuels, 1)
	assert.Equal(t, "dieselA", body.Fuels[0].Fuel)
	assert.Equal(t, 3, body.Fuels[0].Count)
	assert.InDelta(t, 1.40, body.Fuels[0].Min, 1e-9)
	assert.InDelta(t, 1.60, body.Fuels[0].Max, 1e-9)
	assert.InDelta(t, 1.50, body.Fuels[0].Mean, 1e-9)
}

func TestStatusAndRefresh(t *testing.T) {
	r := &repo{stations: fixture()}
	srv, _ := newTestServer(t, r)
	h := srv.Handler()

	status := decode[statusResponse](t, get(t, h, "/status"))
	assert.Equal(t, uint64(1), status.Version)
	assert.Equal(t, 3, status.Stations)
	assert.NotNil(t, status.LastRefresh)
	assert.Empty(t, status.Error)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2), decode[statusResponse](t, rec).Version)
	assert.Equal(t, int64(2), r.calls.Load())

	r.err = errors.New("timeout")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	status = decode[statusResponse](t, rec)
	assert.Equal(t, uint64(2), status.Version)
	assert.Contains(t, status.Error, "timeout")

	rec = get(t, h, "/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPopular(t *testing.T) {
	searches, err := searchlog.NewStorage(context.Background(), filepath.Join(t.TempDir(), "searches.db"), nil)
	require.NoError(t, err)
	defer searches.Close()

	srv, _ := newTestServer(t, &repo{stations: fixture()}, WithSearchLog(searches))
	h := srv.Handler()

	for range 3 {
		require.Equal(t, http.StatusOK, get(t, h, "/stations?lat=40.4168&lng=-3.7038&radius=10").Code)
	}
	require.Equal(t, http.StatusOK, get(t, h, "/stations?q=mayor").Code)

	rec := get(t, h, "/popular")
	require.Equal(t, http.StatusOK, rec.Code)
	popular := decode[[]searchlog.PopularLocation](t, rec)
	require.Len(t, popular, 1)
	assert.Equal(t, int64(3), popular[0].SearchCount)
	assert.InDelta(t, 40.42, popular[0].Latitude, 1e-9)
	assert.InDelta(t, 10.0, popular[0].Radius, 1e-9)
}

func TestPopularDisabled(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()})
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/popular").Code)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, &repo{stations: fixture()}, WithRateLimit(2, time.Minute))
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/status").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/status").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/status").Code)
}
