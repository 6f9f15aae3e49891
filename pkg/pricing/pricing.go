// Package pricing computes market averages per fuel type and classifies a
// station price against them.
package pricing

import (
	"github.com/rubiojr/fuelview/pkg/station"
)

// DefaultThresholdRatio is the relative distance from the average at which a
// price stops being typical.
const DefaultThresholdRatio = 0.02

// Deviation classifies a price relative to the market average.
type Deviation int

const (
	Typical Deviation = iota
	Cheap
	Expensive
)

func (d Deviation) String() string {
	switch d {
	case Cheap:
		return "cheap"
	case Expensive:
		return "expensive"
	default:
		return "typical"
	}
}

func (d Deviation) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Stats summarises the prices reported for one fuel type.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Index maps a fuel type to its mean price. Fuel types nobody reports are
// absent.
type Index map[station.FuelType]float64

// ComputeStats collects, per fuel type, every price the stations report.
// Fuel types without a single price are left out.
func ComputeStats(stations []station.Station) map[station.FuelType]Stats {
	stats := make(map[station.FuelType]Stats)
	sums := make(map[station.FuelType]float64)

	for i := range stations {
		for fuel, price := range stations[i].Prices {
			st, seen := stats[fuel]
			if !seen || price < st.Min {
				st.Min = price
			}
			if !seen || price > st.Max {
				st.Max = price
			}
			st.Count++
			stats[fuel] = st
			sums[fuel] += price
		}
	}

	for fuel, st := range stats {
		st.Mean = sums[fuel] / float64(st.Count)
		stats[fuel] = st
	}

	return stats
}

// ComputeAverages returns the arithmetic mean price per fuel type.
func ComputeAverages(stations []station.Station) Index {
	return IndexFromStats(ComputeStats(stations))
}

// IndexFromStats keeps the mean of every fuel type in stats.
func IndexFromStats(stats map[station.FuelType]Stats) Index {
	idx := make(Index, len(stats))
	for fuel, st := range stats {
		idx[fuel] = st.Mean
	}
	return idx
}

// Classify compares price to average. Prices at exactly the threshold
// distance are classified as cheap or expensive, not typical.
func Classify(price, average, thresholdRatio float64) Deviation {
	diff := price - average
	threshold := average * thresholdRatio

	switch {
	case diff <= -threshold:
		return Cheap
	case diff >= threshold:
		return Expensive
	default:
		return Typical
	}
}

// Classify compares price with the average for fuel using the default ratio.
// Without an average there is no signal and the price is typical.
func (idx Index) Classify(fuel station.FuelType, price float64) Deviation {
	return idx.ClassifyWithRatio(fuel, price, DefaultThresholdRatio)
}

// ClassifyWithRatio is Classify with a custom threshold ratio.
func (idx Index) ClassifyWithRatio(fuel station.FuelType, price, thresholdRatio float64) Deviation {
	avg, ok := idx[fuel]
	if !ok {
		return Typical
	}
	return Classify(price, avg, thresholdRatio)
}
