package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/city-weather/internal/api/http"
	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/config"
	"github.com/i474232898/city-weather/internal/events"
	"github.com/i474232898/city-weather/internal/logger"
	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/persistence"
	"github.com/i474232898/city-weather/internal/scheduler"
	"github.com/i474232898/city-weather/internal/store"
	"github.com/i474232898/city-weather/internal/weather"
	"github.com/i474232898/city-weather/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Logger())
	log := logger.Named("main")

	if config.APIKey() == "" {
		log.Warn().Msg("OPENWEATHER_API_KEY is not set; weather requests will fail until it is")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := events.NewHub()
	registry := cities.NewRegistry()
	registry.Subscribe(hub.RegistryListener())
	cache := store.NewMemoryStore(hub)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	gateway := newGateway(cfg, httpClient, m)

	kv, err := persistence.Open(cfg.Storage())
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("failed to open storage")
	}
	defer kv.Close()

	bridge := persistence.NewBridge(kv)
	service := weather.NewService(registry, cache, gateway,
		weather.WithFetchTimeout(cfg.FetchTimeout),
		weather.WithServiceMetrics(m),
	)

	// Restore before attaching the bridge so the restored list is not written back.
	restored := service.Rehydrate(bridge)
	bridge.Attach(registry)
	log.Info().Int("cities", restored).Str("backend", cfg.StorageBackend).Msg("city list restored")

	janitor := scheduler.New(cache, registry, cfg.JanitorInterval, m)
	if err := janitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start janitor")
	}
	defer janitor.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "city-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "city-weather",
			"cities":  registry.Len(),
			"clients": hub.ClientCount(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// API routes.
	httpapi.RegisterRoutes(app, service, hub)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// End event streams first so open connections can drain.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	service.Wait()
}

// newGateway builds the OpenWeatherMap gateway from configuration.
func newGateway(cfg *config.AppConfig, client *http.Client, m *metrics.Metrics) *providers.OpenWeatherGateway {
	opts := []providers.Option{
		providers.WithDataURL(cfg.OpenWeatherBaseURL),
		providers.WithGeoURL(cfg.OpenWeatherGeoURL),
		providers.WithMetrics(m),
		providers.WithBackoff(providers.BackoffConfig{
			MaxRetries:      cfg.GatewayMaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}),
	}
	if cfg.Geocoder == config.GeocoderGoogle {
		key := cfg.GoogleGeocoderAPIKey
		opts = append(opts, providers.WithGeocoder(providers.NewGoogleGeocoder(func() string { return key })))
	}
	return providers.NewOpenWeatherGateway(client, config.APIKey, opts...)
}
