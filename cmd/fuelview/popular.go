package main

import (
	"fmt"

	"github.com/rubiojr/fuelview/internal/config"
	"github.com/rubiojr/fuelview/internal/searchlog"
	"github.com/urfave/cli/v2"
)

func popularCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "popular",
		Usage: "Show the areas searched most often",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "Search log database file",
				Value: cfg.DBPath,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of areas to print",
				Value:   10,
			},
			verboseFlag(),
		},
		Action: func(c *cli.Context) error {
			return popularAction(c)
		},
	}
}

func popularAction(c *cli.Context) error {
	searches, err := searchlog.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}
	defer searches.Close()

	popular, err := searches.GetPopularLocationHeatmap(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(popular) == 0 {
		fmt.Fprintln(c.App.Writer, "No searches recorded.")
		return nil
	}

	for i, p := range popular {
		fmt.Fprintf(c.App.Writer, "%d. %.4f, %.4f  searches: %d  radius: %g km\n",
			i+1, p.Latitude, p.Longitude, p.SearchCount, p.Radius)
	}
	return nil
}
