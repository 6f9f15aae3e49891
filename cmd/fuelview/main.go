package main

import (
	"fmt"
	"os"

	"github.com/rubiojr/fuelview/internal/config"
	"github.com/urfave/cli/v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "fuelview",
		Usage: "Find fuel stations and compare their prices",
		Commands: []*cli.Command{
			listCommand(cfg),
			averagesCommand(cfg),
			serveCommand(cfg),
			popularCommand(cfg),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
