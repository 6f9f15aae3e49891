package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/rubiojr/fuelview/internal/config"
	"github.com/rubiojr/fuelview/internal/geocode"
	"github.com/rubiojr/fuelview/internal/searchlog"
	"github.com/rubiojr/fuelview/internal/server"
	"github.com/rubiojr/fuelview/internal/store"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/urfave/cli/v2"
)

const pruneInterval = 24 * time.Hour

func serveCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve stations over HTTP, refreshing prices periodically",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP server port",
				Value: 8080,
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Search log database file",
				Value: cfg.DBPath,
			},
			&cli.IntFlag{
				Name:  "rate-limit",
				Usage: "Requests per minute allowed per client IP",
				Value: 20,
			},
			&cli.IntFlag{
				Name:  "retention-days",
				Usage: "Forget search locations not used for this many days (0 keeps them)",
				Value: 90,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Log in JSON",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: func(c *cli.Context) error {
			return serveAction(c, cfg)
		},
	}
}

func serveAction(c *cli.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := httplog.NewLogger("fuelview", httplog.Options{
		JSON:            c.Bool("json"),
		LogLevel:        level,
		Concise:         true,
		QuietDownPeriod: 10 * time.Second,
	})

	searches, err := searchlog.NewStorage(ctx, c.String("db"), logger.Logger)
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}
	defer searches.Close()

	client := newAPIClient(cfg)
	st := store.New(store.NewAPIRepository(client), logger.Logger,
		store.WithRadius(cfg.RadiusKm),
		store.WithFuelType(station.DieselA),
		store.WithThresholdRatio(cfg.PriceThreshold),
	)
	go st.Watch(ctx, cfg.RefreshInterval)

	if days := c.Int("retention-days"); days > 0 {
		go pruneSearches(ctx, searches, days, logger.Logger)
	}

	srv := server.New(st, logger,
		server.WithGeocoder(geocode.NewNominatim(cfg.NominatimURL)),
		server.WithSearchLog(searches),
		server.WithDefaultRadius(cfg.RadiusKm),
		server.WithRateLimit(c.Int("rate-limit"), time.Minute),
	)
	return srv.ListenAndServe(ctx, fmt.Sprintf("127.0.0.1:%d", c.Int("port")))
}

func pruneSearches(ctx context.Context, searches *searchlog.Storage, days int, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := searches.DeleteOldRecords(ctx, days); err != nil {
			logger.Error("Error pruning search log", "error", err)
		} else if err := searches.VacuumDatabase(ctx); err != nil {
			logger.Error("Error vacuuming search log", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
