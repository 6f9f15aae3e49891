package station

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rubiojr/fuelview/pkg/api"
)

// FuelType is one of the fuel products tracked per station.
type FuelType int

const (
	DieselA FuelType = iota
	DieselPremium
	Gasoline95E5
	Gasoline95E5Premium
	Gasoline98E5
	LPG
	CNG
	LNG
)

var ErrUnknownFuelType = errors.New("unknown fuel type")

type fuelInfo struct {
	name    string
	label   string
	aliases []string
	price   func(*api.GasStation) string
}

var fuels = [...]fuelInfo{
	DieselA: {
		name:    "dieselA",
		label:   "Gasóleo A",
		aliases: []string{"diesel", "gasoleo", "gasoleoa"},
		price:   func(s *api.GasStation) string { return s.PrecioGasoleoA },
	},
	DieselPremium: {
		name:    "dieselPremium",
		label:   "Gasóleo Premium",
		aliases: []string{"gasoleopremium"},
		price:   func(s *api.GasStation) string { return s.PrecioGasoleoPremium },
	},
	Gasoline95E5: {
		name:    "gasoline95E5",
		label:   "Gasolina 95 E5",
		aliases: []string{"gasolina95", "gasolina95e5", "gasoline95"},
		price:   func(s *api.GasStation) string { return s.PrecioGasolina95E5 },
	},
	Gasoline95E5Premium: {
		name:    "gasoline95E5Premium",
		label:   "Gasolina 95 E5 Premium",
		aliases: []string{"gasolina95premium", "gasoline95premium"},
		price:   func(s *api.GasStation) string { return s.PrecioGasolina95E5Prem },
	},
	Gasoline98E5: {
		name:    "gasoline98E5",
		label:   "Gasolina 98 E5",
		aliases: []string{"gasolina98", "gasolina98e5", "gasoline98"},
		price:   func(s *api.GasStation) string { return s.PrecioGasolina98E5 },
	},
	LPG: {
		name:    "lpg",
		label:   "GLP",
		aliases: []string{"glp", "gaseslicuados"},
		price:   func(s *api.GasStation) string { return s.PrecioGasesLicuados },
	},
	CNG: {
		name:    "cng",
		label:   "GNC",
		aliases: []string{"gnc", "gasnatural"},
		price:   func(s *api.GasStation) string { return s.PrecioGasNaturalComp },
	},
	LNG: {
		name:    "lng",
		label:   "GNL",
		aliases: []string{"gnl", "gasnaturallicuado"},
		price:   func(s *api.GasStation) string { return s.PrecioGasNaturalLicuado },
	},
}

// AllFuelTypes returns every fuel type in declaration order.
func AllFuelTypes() []FuelType {
	all := make([]FuelType, len(fuels))
	for i := range fuels {
		all[i] = FuelType(i)
	}
	return all
}

// Valid reports whether f is one of the declared fuel types.
func (f FuelType) Valid() bool {
	return f >= 0 && int(f) < len(fuels)
}

func (f FuelType) String() string {
	if !f.Valid() {
		return fmt.Sprintf("FuelType(%d)", int(f))
	}
	return fuels[f].name
}

// Label is the product name as shown by the fuel price service.
func (f FuelType) Label() string {
	if !f.Valid() {
		return f.String()
	}
	return fuels[f].label
}

// ParseFuelType accepts the identifier ("dieselA"), the service label
// ("Gasóleo A") or one of the short aliases ("diesel", "gasolina95", "glp").
// Matching is case-insensitive.
func ParseFuelType(s string) (FuelType, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for i, info := range fuels {
		if needle == strings.ToLower(info.name) || needle == strings.ToLower(info.label) {
			return FuelType(i), nil
		}
		for _, alias := range info.aliases {
			if needle == alias {
				return FuelType(i), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFuelType, s)
}

func (f FuelType) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFuelType, int(f))
	}
	return []byte(f.String()), nil
}

func (f *FuelType) UnmarshalText(b []byte) error {
	ft, err := ParseFuelType(string(b))
	if err != nil {
		return err
	}
	*f = ft
	return nil
}
