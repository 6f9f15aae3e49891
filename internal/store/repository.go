package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rubiojr/fuelview/pkg/api"
	"github.com/rubiojr/fuelview/pkg/station"
)

// Snapshot is one successful fetch of the station list.
type Snapshot struct {
	Date     string
	Stations []station.Station
}

// Repository fetches the current station list.
type Repository interface {
	FetchStations(ctx context.Context) (*Snapshot, error)
}

// APIRepository fetches stations from the fuel price service.
type APIRepository struct {
	client *api.FuelPriceAPI
	date   time.Time
}

// NewAPIRepository returns a repository for the latest prices.
func NewAPIRepository(client *api.FuelPriceAPI) *APIRepository {
	return &APIRepository{client: client}
}

// NewHistoricRepository returns a repository that always fetches the prices
// published for date.
func NewHistoricRepository(client *api.FuelPriceAPI, date time.Time) *APIRepository {
	return &APIRepository{client: client, date: date}
}

func (r *APIRepository) FetchStations(ctx context.Context) (*Snapshot, error) {
	var (
		list *api.GasStationList
		err  error
	)
	if r.date.IsZero() {
		list, err = r.client.FetchPrices(ctx)
	} else {
		list, err = r.client.FetchPricesForDate(ctx, r.date)
	}
	if err != nil {
		return nil, err
	}

	if !list.OK() {
		return nil, fmt.Errorf("%w: %s", api.ErrUnexpectedResult, list.ResultadoConsulta)
	}

	return &Snapshot{
		Date:     list.Fecha,
		Stations: station.FromAPI(list),
	}, nil
}
