package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rubiojr/fuelview/pkg/api"
	"github.com/rubiojr/fuelview/pkg/pricing"
)

const (
	defaultRefreshInterval = 6 * time.Hour
	defaultDBPath          = "fuelview.db"
	defaultRadiusKm        = 5.0
	defaultNominatimURL    = "https://nominatim.openstreetmap.org/"
)

// Config holds runtime configuration shared by every command.
type Config struct {
	APIURL          string
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
	DBPath          string
	RadiusKm        float64
	PriceThreshold  float64
	NominatimURL    string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		APIURL:          api.DefaultBaseURL,
		RequestTimeout:  api.DefaultTimeout,
		RefreshInterval: defaultRefreshInterval,
		DBPath:          defaultDBPath,
		RadiusKm:        defaultRadiusKm,
		PriceThreshold:  pricing.DefaultThresholdRatio,
		NominatimURL:    defaultNominatimURL,
	}
	get := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	if v := get("FUELVIEW_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := get("FUELVIEW_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := get("FUELVIEW_NOMINATIM_URL"); v != "" {
		cfg.NominatimURL = v
	}

	if v := get("FUELVIEW_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid FUELVIEW_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if v := get("FUELVIEW_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid FUELVIEW_REFRESH_INTERVAL: %w", err)
		}
		if d <= 0 {
			return cfg, fmt.Errorf("invalid FUELVIEW_REFRESH_INTERVAL: must be positive, got %s", d)
		}
		cfg.RefreshInterval = d
	}

	if v := get("FUELVIEW_RADIUS_KM"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid FUELVIEW_RADIUS_KM: %w", err)
		}
		if f <= 0 {
			return cfg, fmt.Errorf("invalid FUELVIEW_RADIUS_KM: must be positive, got %g", f)
		}
		cfg.RadiusKm = f
	}

	if v := get("FUELVIEW_PRICE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid FUELVIEW_PRICE_THRESHOLD: %w", err)
		}
		if f < 0 {
			return cfg, fmt.Errorf("invalid FUELVIEW_PRICE_THRESHOLD: must not be negative, got %g", f)
		}
		cfg.PriceThreshold = f
	}

	return cfg, nil
}
