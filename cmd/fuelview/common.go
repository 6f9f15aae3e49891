package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rubiojr/fuelview/internal/config"
	"github.com/rubiojr/fuelview/internal/store"
	"github.com/rubiojr/fuelview/pkg/api"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/urfave/cli/v2"
)

const dateLayout = "2006-01-02"

func fuelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "fuel",
		Aliases: []string{"f"},
		Usage:   "Fuel type (dieselA, gasoline95E5, lpg, ...)",
		Value:   station.DieselA.String(),
	}
}

func dateFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "date",
		Usage: "Use the prices published on this date (YYYY-MM-DD) instead of the latest",
	}
}

func verboseFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "verbose",
		Usage: "Log progress to stderr",
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	if !c.Bool("verbose") {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newRepository returns the latest prices, or the prices of --date when set.
func newRepository(c *cli.Context, cfg config.Config) (store.Repository, error) {
	client := newAPIClient(cfg)
	if c.String("date") == "" {
		return store.NewAPIRepository(client), nil
	}
	date, err := time.Parse(dateLayout, c.String("date"))
	if err != nil {
		return nil, fmt.Errorf("error parsing date: %w", err)
	}
	return store.NewHistoricRepository(client, date), nil
}

func newAPIClient(cfg config.Config) *api.FuelPriceAPI {
	return api.NewFuelPriceAPI(
		api.WithBaseURL(cfg.APIURL),
		api.WithTimeout(cfg.RequestTimeout),
	)
}
