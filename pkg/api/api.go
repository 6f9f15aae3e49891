// Package api provides types and functions to fetch the station price list
// published by the Spanish government fuel price service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	ApiResultOK    = "OK"
	DefaultTimeout = 30 * time.Second
	DefaultBaseURL = "https://sedeaplicaciones.minetur.gob.es/ServiciosRESTCarburantes/PreciosCarburantes"
)

// ErrUnexpectedResult is returned when the service answers with a
// ResultadoConsulta other than "OK".
var ErrUnexpectedResult = errors.New("unexpected API result")

// FuelPriceAPI provides methods to fetch fuel price data from the official API.
type FuelPriceAPI struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a FuelPriceAPI.
type Option func(*FuelPriceAPI)

// WithBaseURL overrides the service root, mostly useful in tests.
func WithBaseURL(u string) Option {
	return func(api *FuelPriceAPI) {
		api.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient replaces the default HTTP client. The client is used as
// given; WithTimeout does not modify it.
func WithHTTPClient(c *http.Client) Option {
	return func(api *FuelPriceAPI) {
		api.httpClient = c
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(api *FuelPriceAPI) {
		api.timeout = d
	}
}

// NewFuelPriceAPI creates a new FuelPriceAPI client with default settings.
func NewFuelPriceAPI(opts ...Option) *FuelPriceAPI {
	api := &FuelPriceAPI{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(api)
	}
	if api.httpClient == nil {
		api.httpClient = &http.Client{Timeout: api.timeout}
	}
	return api
}

// FetchPrices fetches the latest available fuel station prices.
func (api *FuelPriceAPI) FetchPrices(ctx context.Context) (*GasStationList, error) {
	return api.fetch(ctx, api.baseURL+"/EstacionesTerrestres")
}

// FetchPricesForDate fetches fuel station prices for a specific date.
func (api *FuelPriceAPI) FetchPricesForDate(ctx context.Context, date time.Time) (*GasStationList, error) {
	return api.fetch(ctx, fmt.Sprintf("%s/EstacionesTerrestresHist/%s", api.baseURL, date.Format("02-01-2006")))
}

func (api *FuelPriceAPI) fetch(ctx context.Context, url string) (*GasStationList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var pricesResponse GasStationList
	if err := json.Unmarshal(body, &pricesResponse); err != nil {
		return nil, fmt.Errorf("error unmarshaling JSON: %w", err)
	}

	return &pricesResponse, nil
}

// ParseLatLong parses a latitude or longitude string (with comma or dot) to float64.
func ParseLatLong(s string) (float64, error) {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	m, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}

	return m, nil
}
