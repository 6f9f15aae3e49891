package api

// GasStationList represents the response structure from the fuel price API.
type GasStationList struct {
	Fecha             string       `json:"Fecha"`
	ListaEESSPrecio   []GasStation `json:"ListaEESSPrecio"`
	Nota              string       `json:"Nota"`
	ResultadoConsulta string       `json:"ResultadoConsulta"`
}

// OK reports whether the service flagged the response as successful.
func (l *GasStationList) OK() bool {
	return l.ResultadoConsulta == ApiResultOK
}

// GasStation is a single station record as published by the service.
// Numbers are decimal-comma strings; an empty price means the fuel is not sold.
type GasStation struct {
	CP                      string `json:"C.P."`
	Direccion               string `json:"Dirección"`
	Horario                 string `json:"Horario"`
	Latitud                 string `json:"Latitud"`
	Localidad               string `json:"Localidad"`
	Longitud                string `json:"Longitud (WGS84)"`
	Municipio               string `json:"Municipio"`
	Provincia               string `json:"Provincia"`
	Rotulo                  string `json:"Rótulo"`
	IDEESS                  string `json:"IDEESS"`
	PrecioGasNaturalComp    string `json:"Precio Gas Natural Comprimido"`
	PrecioGasNaturalLicuado string `json:"Precio Gas Natural Licuado"`
	PrecioGasesLicuados     string `json:"Precio Gases licuados del petróleo"`
	PrecioGasoleoA          string `json:"Precio Gasoleo A"`
	PrecioGasoleoPremium    string `json:"Precio Gasoleo Premium"`
	PrecioGasolina95E5      string `json:"Precio Gasolina 95 E5"`
	PrecioGasolina95E5Prem  string `json:"Precio Gasolina 95 E5 Premium"`
	PrecioGasolina98E5      string `json:"Precio Gasolina 98 E5"`
}
