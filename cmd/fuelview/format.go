package main

import (
	"fmt"
	"io"

	"github.com/rubiojr/fuelview/pkg/pricing"
	"github.com/rubiojr/fuelview/pkg/station"
	"github.com/rubiojr/fuelview/pkg/view"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

type printer struct {
	w     io.Writer
	color bool
}

func (p *printer) rows(rows []view.Row, fuel station.FuelType) {
	for i, r := range rows {
		s := r.Station
		fmt.Fprintf(p.w, "%d. %s (%s)\n", i+1, s.Name, s.FullAddress())
		if r.Located {
			fmt.Fprintf(p.w, "   Distance: %s\n", formatDistance(r.DistanceMeters))
		}
		fmt.Fprintf(p.w, "   %s: %s\n", fuel.Label(), p.price(r))
		if _, msg := s.Status(); msg != "" {
			fmt.Fprintf(p.w, "   Schedule: %s\n", msg)
		}
		fmt.Fprintln(p.w)
	}
}

func (p *printer) price(r view.Row) string {
	text := formatPrice(r.Price, r.HasPrice)
	if !r.HasPrice || r.Deviation == pricing.Typical {
		return text
	}
	if !p.color {
		return fmt.Sprintf("%s (%s)", text, r.Deviation)
	}

	code := ansiGreen
	if r.Deviation == pricing.Expensive {
		code = ansiRed
	}
	return code + text + ansiReset
}

func formatPrice(price float64, ok bool) string {
	if !ok || price <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.3f €", price)
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}
