// Package station turns the fuel price service records into immutable
// Station values with parsed coordinates and prices.
package station

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rubiojr/fuelview/pkg/api"
	"github.com/rubiojr/fuelview/pkg/geo"
)

const allDayMarker = "24H"

// Station is a fuel station as ingested from one fetch. Values are never
// modified after ingestion; a refresh replaces the whole list.
type Station struct {
	// ID is assigned on ingestion and is stable for the lifetime of the list.
	ID string `json:"id"`
	// SourceID is the IDEESS code published by the service.
	SourceID     string `json:"source_id,omitempty"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Locality     string `json:"locality"`
	Municipality string `json:"municipality"`
	Province     string `json:"province,omitempty"`
	PostalCode   string `json:"postal_code"`
	Schedule     string `json:"schedule"`
	// Location is nil when the published coordinates could not be parsed.
	Location *geo.Point           `json:"location,omitempty"`
	Prices   map[FuelType]float64 `json:"prices"`
}

// Price returns the price of fuel at the station and whether it is sold there.
func (s Station) Price(fuel FuelType) (float64, bool) {
	p, ok := s.Prices[fuel]
	return p, ok
}

// FullAddress formats the postal address on a single line.
func (s Station) FullAddress() string {
	return fmt.Sprintf("%s, %s, %s %s", s.Address, s.Locality, s.Municipality, s.PostalCode)
}

// OpenAllDay reports whether the schedule carries the 24H marker.
func (s Station) OpenAllDay() bool {
	return strings.Contains(s.Schedule, allDayMarker)
}

// Status returns whether the station is open and a short message for display.
// Schedules other than 24H are not interpreted and are echoed back.
func (s Station) Status() (bool, string) {
	if s.OpenAllDay() {
		return true, "Open 24h"
	}
	return true, s.Schedule
}

// ParsePrice parses a decimal-comma price. Empty, placeholder, malformed,
// non-finite and negative values all mean the fuel is not sold.
func ParsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "N/A") {
		return 0, false
	}
	s = strings.TrimSuffix(s, "€")
	p, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0, false
	}
	return p, true
}

// ParseLocation parses a latitude/longitude pair. Both must parse and be in
// range, otherwise no location is returned.
func ParseLocation(lat, lng string) (*geo.Point, bool) {
	la, err := api.ParseLatLong(lat)
	if err != nil {
		return nil, false
	}
	lo, err := api.ParseLatLong(lng)
	if err != nil {
		return nil, false
	}
	p := geo.Point{Lat: la, Lng: lo}
	if !p.Valid() {
		return nil, false
	}
	return &p, true
}

// FromAPI ingests a service response. Records with bad coordinates or prices
// are kept with those fields degraded.
func FromAPI(list *api.GasStationList) []Station {
	if list == nil {
		return nil
	}
	stations := make([]Station, 0, len(list.ListaEESSPrecio))
	for i := range list.ListaEESSPrecio {
		stations = append(stations, FromRecord(&list.ListaEESSPrecio[i]))
	}
	return stations
}

// FromRecord ingests a single service record.
func FromRecord(r *api.GasStation) Station {
	s := Station{
		ID:           uuid.NewString(),
		SourceID:     r.IDEESS,
		Name:         r.Rotulo,
		Address:      r.Direccion,
		Locality:     r.Localidad,
		Municipality: r.Municipio,
		Province:     r.Provincia,
		PostalCode:   r.CP,
		Schedule:     r.Horario,
		Prices:       make(map[FuelType]float64),
	}
	if loc, ok := ParseLocation(r.Latitud, r.Longitud); ok {
		s.Location = loc
	}
	for i, info := range fuels {
		if p, ok := ParsePrice(info.price(r)); ok {
			s.Prices[FuelType(i)] = p
		}
	}
	return s
}
