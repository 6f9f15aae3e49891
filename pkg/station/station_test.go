package station

import (
	"encoding/json"
	"testing"

	"github.com/rubiojr/fuelview/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"1,459", 1.459, true},
		{"1.459", 1.459, true},
		{" 1,5 ", 1.5, true},
		{"1,459€", 1.459, true},
		{"0", 0, true},
		{"", 0, false},
		{"   ", 0, false},
		{"-", 0, false},
		{"N/A", 0, false},
		{"abc", 0, false},
		{"-1,20", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"+Inf", 0, false},
		{"-Inf", 0, false},
		{"1e400", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParsePrice(tt.input)
		assert.Equal(t, tt.ok, ok, "ParsePrice(%q) ok", tt.input)
		assert.Equal(t, tt.want, got, "ParsePrice(%q)", tt.input)
	}
}

func TestParseLocation(t *testing.T) {
	loc, ok := ParseLocation("40,424861", "-3,687611")
	require.True(t, ok)
	assert.Equal(t, 40.424861, loc.Lat)
	assert.Equal(t, -3.687611, loc.Lng)

	for _, pair := range [][2]string{
		{"", "-3,6"},
		{"40,4", ""},
		{"bad", "bad"},
		{"95,0", "1,0"},
	} {
		loc, ok := ParseLocation(pair[0], pair[1])
		assert.False(t, ok, "ParseLocation(%q, %q)", pair[0], pair[1])
		assert.Nil(t, loc)
	}
}

func TestFromAPI(t *testing.T) {
	list := &api.GasStationList{
		Fecha:             "19/10/2026 10:21:32",
		ResultadoConsulta: api.ApiResultOK,
		ListaEESSPrecio: []api.GasStation{
			{
				IDEESS:               "4375",
				Rotulo:               "REPSOL",
				Direccion:            "CALLE SERRANO, 10",
				Localidad:            "MADRID",
				Municipio:            "Madrid",
				CP:                   "28001",
				Horario:              "L-D: 24H",
				Latitud:              "40,424861",
				Longitud:             "-3,687611",
				PrecioGasoleoA:       "1,459",
				PrecioGasolina95E5:   "1,599",
				PrecioGasoleoPremium: "",
				PrecioGasesLicuados:  "n/a",
			},
			{
				IDEESS:         "9001",
				Direccion:      "AVENIDA DEL MAR, S/N",
				Localidad:      "ALMERIA",
				Municipio:      "Almería",
				Horario:        "L-V: 07:00-22:00",
				Latitud:        "",
				Longitud:       "-2,46",
				PrecioGasoleoA: "1,399",
			},
		},
	}

	stations := FromAPI(list)
	require.Len(t, stations, 2)

	first := stations[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "4375", first.SourceID)
	require.NotNil(t, first.Location)
	assert.Equal(t, 40.424861, first.Location.Lat)
	assert.Equal(t, map[FuelType]float64{DieselA: 1.459, Gasoline95E5: 1.599}, first.Prices)
	assert.True(t, first.OpenAllDay())

	open, msg := first.Status()
	assert.True(t, open)
	assert.Equal(t, "Open 24h", msg)
	assert.Equal(t, "CALLE SERRANO, 10, MADRID, Madrid 28001", first.FullAddress())

	second := stations[1]
	assert.Nil(t, second.Location, "partial coordinates must be dropped")
	assert.NotEqual(t, first.ID, second.ID)
	_, msg = second.Status()
	assert.Equal(t, "L-V: 07:00-22:00", msg)

	p, ok := second.Price(DieselA)
	assert.True(t, ok)
	assert.Equal(t, 1.399, p)
	_, ok = second.Price(LPG)
	assert.False(t, ok)

	assert.Nil(t, FromAPI(nil))
}

func TestParseFuelType(t *testing.T) {
	tests := []struct {
		input string
		want  FuelType
	}{
		{"dieselA", DieselA},
		{"DIESEL", DieselA},
		{"Gasóleo Premium", DieselPremium},
		{"gasolina95", Gasoline95E5},
		{"gasoline95E5Premium", Gasoline95E5Premium},
		{"gasolina98", Gasoline98E5},
		{"glp", LPG},
		{"GNC", CNG},
		{"lng", LNG},
	}
	for _, tt := range tests {
		got, err := ParseFuelType(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	_, err := ParseFuelType("hydrogen")
	assert.ErrorIs(t, err, ErrUnknownFuelType)
}

func TestFuelTypeRoundTrip(t *testing.T) {
	all := AllFuelTypes()
	require.Len(t, all, 8)
	for _, ft := range all {
		parsed, err := ParseFuelType(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)

		parsed, err = ParseFuelType(ft.Label())
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)
	}
	assert.False(t, FuelType(42).Valid())
}

func TestStationJSONUsesFuelNames(t *testing.T) {
	s := Station{ID: "x", Prices: map[FuelType]float64{LPG: 0.899}}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"prices":{"lpg":0.899}`)

	var back Station
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s.Prices, back.Prices)
}

func TestOpenAllDay(t *testing.T) {
	tests := []struct {
		schedule string
		want     bool
	}{
		{"L-D: 24H", true},
		{"24H", true},
		{"L-D: 24h", false},
		{"L-V: 07:00-22:00", false},
		{"", false},
	}
	for _, tt := range tests {
		s := Station{Schedule: tt.schedule}
		assert.Equal(t, tt.want, s.OpenAllDay(), "OpenAllDay(%q)", tt.schedule)
	}
}
