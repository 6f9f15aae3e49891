// Package view derives the station list a consumer displays from its
// ViewState: text search, distance ordering and radius bounding.
package view

import (
	"sort"
	"strings"

	"github.com/rubiojr/fuelview/pkg/geo"
	"github.com/rubiojr/fuelview/pkg/pricing"
	"github.com/rubiojr/fuelview/pkg/station"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// State holds every input of the pipeline. Source identifies who owns
// Stations and Version must change whenever that owner replaces them; Cache
// relies on both.
type State struct {
	Stations     []station.Station
	Source       string
	Version      uint64
	FuelType     station.FuelType
	SearchText   string
	RadiusKm     float64
	ShowAll      bool
	UserLocation *geo.Point
}

// Match is a station selected by the pipeline, with its distance to the user
// when both locations are known.
type Match struct {
	Station        station.Station `json:"station"`
	DistanceMeters float64         `json:"distance_meters"`
	Located        bool            `json:"located"`
}

// Row is a Match joined with the price of the selected fuel.
type Row struct {
	Match
	Price     float64           `json:"price"`
	HasPrice  bool              `json:"has_price"`
	Deviation pricing.Deviation `json:"deviation"`
}

// Filter returns the stations to display for s.
func Filter(s State) []station.Station {
	return Stations(Apply(s))
}

// Stations projects matches back to their stations.
func Stations(matches []Match) []station.Station {
	out := make([]station.Station, len(matches))
	for i := range matches {
		out[i] = matches[i].Station
	}
	return out
}

// Apply runs the pipeline:
//
//   - a non-blank search text keeps the stations whose address, municipality
//     and locality contain every search token, in list order, and nothing
//     else is applied;
//   - without a user location the list is returned as received;
//   - otherwise stations are sorted by distance, unlocated ones last, and,
//     unless ShowAll is set, bounded to RadiusKm. When no station is inside
//     the radius the whole sorted list is returned instead.
func Apply(s State) []Match {
	if tokens := searchTokens(s.SearchText); len(tokens) > 0 {
		return search(s.Stations, tokens, s.UserLocation)
	}

	if s.UserLocation == nil {
		return unsorted(s.Stations)
	}

	sorted := byDistance(s.Stations, *s.UserLocation)
	if s.ShowAll {
		return sorted
	}

	limit := s.RadiusKm * geo.MetersPerKm
	within := make([]Match, 0, len(sorted))
	for _, m := range sorted {
		if m.Located && m.DistanceMeters <= limit {
			within = append(within, m)
		}
	}
	if len(within) == 0 {
		return sorted
	}
	return within
}

// Rows joins matches with the price of fuel and its classification against idx.
func Rows(matches []Match, fuel station.FuelType, idx pricing.Index) []Row {
	return RowsWithRatio(matches, fuel, idx, pricing.DefaultThresholdRatio)
}

// RowsWithRatio is Rows with a custom classification threshold.
func RowsWithRatio(matches []Match, fuel station.FuelType, idx pricing.Index, thresholdRatio float64) []Row {
	rows := make([]Row, len(matches))
	for i := range matches {
		rows[i].Match = matches[i]
		if p, ok := matches[i].Station.Price(fuel); ok {
			rows[i].Price = p
			rows[i].HasPrice = true
			rows[i].Deviation = idx.ClassifyWithRatio(fuel, p, thresholdRatio)
		}
	}
	return rows
}

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func searchTokens(text string) []string {
	return strings.Fields(lower(text))
}

func searchable(s *station.Station) string {
	return lower(s.Address + " " + s.Municipality + " " + s.Locality)
}

// search keeps list order; distances are only annotated.
func search(stations []station.Station, tokens []string, from *geo.Point) []Match {
	var matches []Match
	for i := range stations {
		if containsAll(searchable(&stations[i]), tokens) {
			matches = append(matches, newMatch(stations[i], from))
		}
	}
	return matches
}

func newMatch(st station.Station, from *geo.Point) Match {
	m := Match{Station: st}
	if from != nil && st.Location != nil {
		m.DistanceMeters = geo.DistanceMeters(*from, *st.Location)
		m.Located = true
	}
	return m
}

func containsAll(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

func unsorted(stations []station.Station) []Match {
	matches := make([]Match, len(stations))
	for i := range stations {
		matches[i] = newMatch(stations[i], nil)
	}
	return matches
}

func byDistance(stations []station.Station, from geo.Point) []Match {
	matches := make([]Match, len(stations))
	for i := range stations {
		matches[i] = newMatch(stations[i], &from)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Located != matches[j].Located {
			return matches[i].Located
		}
		if !matches[i].Located {
			return false
		}
		return matches[i].DistanceMeters < matches[j].DistanceMeters
	})

	return matches
}
