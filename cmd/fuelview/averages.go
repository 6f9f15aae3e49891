package main

import (
	"fmt"

	"github.com/rubiojr/fuelview/internal/config"
	"github.com/rubiojr/fuelview/internal/store"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/urfave/cli/v2"
)

func averagesCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "averages",
		Usage: "Print the national minimum, mean and maximum price per fuel",
		Flags: []cli.Flag{
			dateFlag(),
			verboseFlag(),
		},
		Action: func(c *cli.Context) error {
			return averagesAction(c, cfg)
		},
	}
}

func averagesAction(c *cli.Context, cfg config.Config) error {
	repo, err := newRepository(c, cfg)
	if err != nil {
		return err
	}

	st := store.New(repo, newLogger(c))
	if err := st.Refresh(c.Context); err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Prices published %s\n\n", st.SnapshotDate())
	fmt.Fprintf(w, "%-24s %8s %10s %10s %10s\n", "Fuel", "Stations", "Min", "Mean", "Max")

	stats := st.Stats()
	for _, f := range station.AllFuelTypes() {
		s, ok := stats[f]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-24s %8d %10.3f %10.3f %10.3f\n", f.Label(), s.Count, s.Min, s.Mean, s.Max)
	}
	return nil
}
