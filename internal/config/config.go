// Package config centralizes runtime settings and their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults used when neither the config file nor the environment sets a key.
const (
	DefaultPort           = "8080"
	DefaultDBDriver       = "sqlite"
	DefaultDBPath         = "data/app.db"
	DefaultSeedPath       = "data/seeds/routes.json"
	DefaultORSBaseURL     = "https://api.openrouteservice.org"
	DefaultORSProfile     = "driving-car"
	DefaultORSRatePerSec  = 5.0
	DefaultGeocodeCountry = "US"

	// Pharmacy depot used as the route start when nothing better is known.
	DefaultPharmacyLat = 33.4484
	DefaultPharmacyLng = -112.0740

	DefaultNotifyRadiusMeters = 300.0
)

type Config struct {
	Port        string `yaml:"PORT"`
	DBDriver    string `yaml:"DB_DRIVER"`
	DBPath      string `yaml:"DB_PATH"`
	DatabaseURL string `yaml:"DATABASE_URL"`
	SeedPath    string `yaml:"SEED_PATH"`

	ORSAPIKey      string  `yaml:"ORS_API_KEY"`
	ORSBaseURL     string  `yaml:"ORS_BASE_URL"`
	ORSProfile     string  `yaml:"ORS_PROFILE"`
	ORSRatePerSec  float64 `yaml:"ORS_RATE_PER_SEC"`
	GeocodeCountry string  `yaml:"GEOCODE_COUNTRY"`

	PharmacyLat float64 `yaml:"PHARMACY_LAT"`
	PharmacyLng float64 `yaml:"PHARMACY_LNG"`

	NotifyRadiusMeters  float64 `yaml:"NOTIFY_RADIUS_METERS"`
	NotifyWebhookURL    string  `yaml:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string  `yaml:"NOTIFY_WEBHOOK_SECRET"`

	RedisURL string `yaml:"REDIS_URL"`
}

func defaults() Config {
	return Config{
		Port:               DefaultPort,
		DBDriver:           DefaultDBDriver,
		DBPath:             DefaultDBPath,
		SeedPath:           DefaultSeedPath,
		ORSBaseURL:         DefaultORSBaseURL,
		ORSProfile:         DefaultORSProfile,
		ORSRatePerSec:      DefaultORSRatePerSec,
		GeocodeCountry:     DefaultGeocodeCountry,
		PharmacyLat:        DefaultPharmacyLat,
		PharmacyLng:        DefaultPharmacyLng,
		NotifyRadiusMeters: DefaultNotifyRadiusMeters,
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// named by CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(Get("CONFIG_FILE", "")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("load config: parse %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"PORT":                  &cfg.Port,
		"DB_DRIVER":             &cfg.DBDriver,
		"DB_PATH":               &cfg.DBPath,
		"DATABASE_URL":          &cfg.DatabaseURL,
		"SEED_PATH":             &cfg.SeedPath,
		"ORS_API_KEY":           &cfg.ORSAPIKey,
		"ORS_BASE_URL":          &cfg.ORSBaseURL,
		"ORS_PROFILE":           &cfg.ORSProfile,
		"GEOCODE_COUNTRY":       &cfg.GeocodeCountry,
		"NOTIFY_WEBHOOK_URL":    &cfg.NotifyWebhookURL,
		"NOTIFY_WEBHOOK_SECRET": &cfg.NotifyWebhookSecret,
		"REDIS_URL":             &cfg.RedisURL,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"ORS_RATE_PER_SEC":     &cfg.ORSRatePerSec,
		"PHARMACY_LAT":         &cfg.PharmacyLat,
		"PHARMACY_LNG":         &cfg.PharmacyLng,
		"NOTIFY_RADIUS_METERS": &cfg.NotifyRadiusMeters,
	}
	for key, dst := range floats {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("load config: %s=%q is not a number: %w", key, v, err)
		}
		*dst = f
	}
	return nil
}

// Validate checks values that cannot be defaulted. ORS_API_KEY is checked
// by the server, not here, so tooling can run without it.
func (c Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case "pgx":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the pgx driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER=%q must be sqlite or pgx", c.DBDriver))
	}

	if c.PharmacyLat < -90 || c.PharmacyLat > 90 {
		errs = append(errs, fmt.Errorf("PHARMACY_LAT=%v out of range", c.PharmacyLat))
	}
	if c.PharmacyLng < -180 || c.PharmacyLng > 180 {
		errs = append(errs, fmt.Errorf("PHARMACY_LNG=%v out of range", c.PharmacyLng))
	}
	if c.NotifyRadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_RADIUS_METERS=%v must be positive", c.NotifyRadiusMeters))
	}
	if c.ORSRatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("ORS_RATE_PER_SEC=%v must be positive", c.ORSRatePerSec))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == "pgx" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
