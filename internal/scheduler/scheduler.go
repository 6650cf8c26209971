package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/city-weather/internal/logger"
	"github.com/i474232898/city-weather/internal/metrics"
)

// Pruner drops cache entries whose key fails keep.
type Pruner interface {
	Prune(keep func(cityID string) bool) int
}

// Tracker reports whether a city is still registered.
type Tracker interface {
	Has(id string) bool
}

// Janitor periodically removes cache entries for cities that are no longer
// tracked.
type Janitor struct {
	scheduler *gocron.Scheduler
	cache     Pruner
	registry  Tracker
	metrics   *metrics.Metrics
	interval  time.Duration
}

// New creates a new Janitor. m may be nil.
func New(cache Pruner, registry Tracker, interval time.Duration, m *metrics.Metrics) *Janitor {
	s := gocron.NewScheduler(time.UTC)
	return &Janitor{
		scheduler: s,
		cache:     cache,
		registry:  registry,
		metrics:   m,
		interval:  interval,
	}
}

// Start schedules the sweep and starts the underlying scheduler.
func (j *Janitor) Start() error {
	interval := j.interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	_, err := j.scheduler.Every(interval).WaitForSchedule().Do(func() {
		j.RunOnce()
	})
	if err != nil {
		return err
	}

	j.scheduler.StartAsync()
	logger.Named("janitor").Info().Dur("interval", interval).Msg("cache janitor started")
	return nil
}

// RunOnce sweeps the cache and returns the number of pruned entries.
func (j *Janitor) RunOnce() int {
	n := j.cache.Prune(j.registry.Has)
	j.metrics.Pruned(n)
	if n > 0 {
		logger.Named("janitor").Info().Int("pruned", n).Msg("pruned orphan cache entries")
	}
	return n
}

// Stop stops the scheduler and cancels any future sweeps.
func (j *Janitor) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}
