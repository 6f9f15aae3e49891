package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rubiojr/fuelview/internal/config"
	"github.com/rubiojr/fuelview/internal/geocode"
	"github.com/rubiojr/fuelview/internal/searchlog"
	"github.com/rubiojr/fuelview/internal/store"
	"github.com/rubiojr/fuelview/pkg/geo"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/urfave/cli/v2"
)

func listCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stations around a location, or matching a search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "search",
				Aliases: []string{"s"},
				Usage:   "Only stations whose address, municipality and locality contain every word",
			},
			&cli.StringFlag{
				Name:  "location",
				Usage: "Place name to search around",
			},
			&cli.Float64Flag{
				Name:  "lat",
				Usage: "Latitude of the location",
			},
			&cli.Float64Flag{
				Name:  "long",
				Usage: "Longitude of the location",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Search radius in kilometers",
				Value:   cfg.RadiusKm,
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Show every station sorted by distance, ignoring the radius",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of stations to print (0 prints all)",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Record the search location in this database",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored prices",
			},
			fuelFlag(),
			dateFlag(),
			verboseFlag(),
		},
		Action: func(c *cli.Context) error {
			return listAction(c, cfg)
		},
	}
}

func listAction(c *cli.Context, cfg config.Config) error {
	ctx := c.Context
	logger := newLogger(c)

	fuel, err := station.ParseFuelType(c.String("fuel"))
	if err != nil {
		return err
	}

	loc, err := userLocation(c, cfg)
	if err != nil {
		return err
	}

	repo, err := newRepository(c, cfg)
	if err != nil {
		return err
	}

	radius := c.Float64("radius")
	if radius <= 0 {
		return errors.New("radius must be positive")
	}

	st := store.New(repo, logger,
		store.WithRadius(radius),
		store.WithFuelType(fuel),
		store.WithThresholdRatio(cfg.PriceThreshold),
	)
	if err := st.Refresh(ctx); err != nil {
		return err
	}
	st.SetSearchText(c.String("search"))
	st.SetShowAll(c.Bool("all"))
	st.SetUserLocation(loc)

	if loc != nil && c.String("db") != "" {
		searches, err := searchlog.NewStorage(ctx, c.String("db"), logger)
		if err != nil {
			return fmt.Errorf("error initializing storage: %w", err)
		}
		defer searches.Close()
		if err := searches.LogSearchLocation(ctx, *loc, radius); err != nil {
			return err
		}
	}

	rows := st.Rows()
	total := len(rows)
	if limit := c.Int("limit"); limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	color := !c.Bool("no-color") &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	p := &printer{w: c.App.Writer, color: color}
	p.rows(rows, fuel)

	if date := st.SnapshotDate(); date != "" {
		fmt.Fprintf(c.App.Writer, "Prices published %s\n", date)
	}
	fmt.Fprintf(c.App.Writer, "Showing %d of %d stations, %s average %s\n\n",
		len(rows), total, fuel.Label(), formatPrice(st.Averages()[fuel], true))
	return nil
}

// userLocation resolves --location, or --lat/--long when given.
// Neither means no location.
func userLocation(c *cli.Context, cfg config.Config) (*geo.Point, error) {
	if name := c.String("location"); name != "" {
		place, err := geocode.NewNominatim(cfg.NominatimURL).Geocode(c.Context, name)
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(c.App.Writer, "Location found:", place.Name)
		return &place.Point, nil
	}

	return coordinates(c)
}

func coordinates(c *cli.Context) (*geo.Point, error) {
	if !c.IsSet("lat") && !c.IsSet("long") {
		return nil, nil
	}
	if !c.IsSet("lat") || !c.IsSet("long") {
		return nil, errors.New("latitude and longitude must be given together")
	}
	p := geo.Point{Lat: c.Float64("lat"), Lng: c.Float64("long")}
	if !p.Valid() {
		return nil, fmt.Errorf("invalid coordinates %s", p)
	}
	return &p, nil
}
