package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/city-weather/internal/logger"
	"github.com/i474232898/city-weather/internal/persistence"
)

// Geocoder backends.
const (
	GeocoderOpenWeather = "openweather"
	GeocoderGoogle      = "google"
)

type AppConfig struct {
	Port string

	OpenWeatherBaseURL string
	OpenWeatherGeoURL  string

	// HTTPTimeout bounds a single upstream request; FetchTimeout bounds a
	// whole background fetch including retries.
	HTTPTimeout       time.Duration
	FetchTimeout      time.Duration
	GatewayMaxRetries int

	Geocoder             string
	GoogleGeocoderAPIKey string

	StorageBackend string
	StorageDir     string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// JanitorInterval is how often orphan cache entries are pruned.
	JanitorInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.Named("config").Debug().Err(err).Msg("no .env file loaded")
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.OpenWeatherBaseURL = getenvDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5")
	cfg.OpenWeatherGeoURL = getenvDefault("OPENWEATHER_GEO_URL", "https://api.openweathermap.org/geo/1.0/direct")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	cfg.GatewayMaxRetries = getenvInt("GATEWAY_MAX_RETRIES", 0)
	if cfg.GatewayMaxRetries < 0 {
		return nil, fmt.Errorf("invalid GATEWAY_MAX_RETRIES: %d", cfg.GatewayMaxRetries)
	}

	cfg.Geocoder = strings.ToLower(getenvDefault("GEOCODER", GeocoderOpenWeather))
	cfg.GoogleGeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")
	switch cfg.Geocoder {
	case GeocoderOpenWeather:
	case GeocoderGoogle:
		if cfg.GoogleGeocoderAPIKey == "" {
			return nil, fmt.Errorf("GEOCODER=google requires GOOGLE_GEOCODER_API_KEY")
		}
	default:
		return nil, fmt.Errorf("invalid GEOCODER: %q", cfg.Geocoder)
	}

	cfg.StorageBackend = strings.ToLower(getenvDefault("STORAGE_BACKEND", persistence.BackendFile))
	cfg.StorageDir = getenvDefault("STORAGE_DIR", "./data")
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "./data/city-weather.db")
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)

	if cfg.JanitorInterval, err = getenvDuration("JANITOR_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "console"))

	return cfg, nil
}

// APIKey reads the OpenWeatherMap key at call time, so a key exported after
// startup is picked up without a restart.
func APIKey() string {
	return strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY"))
}

// Storage returns the persistence options for the configured backend.
func (c *AppConfig) Storage() persistence.Options {
	return persistence.Options{
		Backend:       c.StorageBackend,
		Dir:           c.StorageDir,
		SQLitePath:    c.SQLitePath,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

// Logger returns the logger options for the configured level and format.
func (c *AppConfig) Logger() logger.Options {
	return logger.Options{
		Level:   c.LogLevel,
		Format:  c.LogFormat,
		Service: "city-weather",
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def.String()))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
