// Package app provides application-level orchestration for chargelog: it
// wires configuration, the store, the scraper and the ingest pipelines into
// the jobs the commands run.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/internal/config"
	"github.com/Zerofisher/chargelog/pkg/ingest"
	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/scrape"
	"github.com/Zerofisher/chargelog/pkg/store/sqlite"
)

// Scraper fetches upstream documents.
type Scraper interface {
	Locations(ctx context.Context) (map[string]*model.LocationRecord, error)
	Availability(ctx context.Context, ids []string) (map[string]*model.LocationRecord, error)
}

// App holds the long-lived components of one process.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *sqlite.Store
	pipeline *ingest.Pipeline
	scraper  Scraper

	// firstRun delays the first scheduled availability run.
	firstRun time.Duration
}

// Option customizes an App.
type Option func(*App)

// WithScraper replaces the HTTP scraper.
func WithScraper(s Scraper) Option {
	return func(a *App) { a.scraper = s }
}

// WithFirstRunDelay sets the delay before the first scheduled availability run.
func WithFirstRunDelay(d time.Duration) Option {
	return func(a *App) { a.firstRun = d }
}

// New opens the store and builds the pipeline and scraper.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := sqlite.Open(ctx, sqlite.Config{
		Path:         cfg.Database.Path,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	pipeline, err := ingest.New(ingest.Config{
		DB:     st.DB(),
		Logger: logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		pipeline: pipeline,
		firstRun: time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.scraper == nil {
		a.scraper = scrape.New(scrape.Config{
			LocationsURL:    cfg.Scraper.LocationsURL,
			AvailabilityURL: cfg.Scraper.AvailabilityURL,
			MaxWorkers:      cfg.Scraper.MaxWorkers,
			SleepBetween:    cfg.Scraper.SleepBetween,
			Timeout:         cfg.Scraper.Timeout,
		}, logger.Named("scrape"))
	}
	return a, nil
}

// Close closes the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Store returns the opened store.
func (a *App) Store() *sqlite.Store {
	return a.store
}

// Pipeline returns the ingest pipeline.
func (a *App) Pipeline() *ingest.Pipeline {
	return a.pipeline
}

// RunLocations scrapes the location list and ingests it.
func (a *App) RunLocations(ctx context.Context) (*ingest.Result, error) {
	locations, err := a.scraper.Locations(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrape locations: %w", err)
	}
	res, err := a.pipeline.RunLocations(ctx, locations)
	if err != nil {
		return res, err
	}
	a.logger.Info(fmt.Sprintf("Inserted %d location rows", res.Success),
		zap.String("run_id", res.RunID),
		zap.Int("locations", res.Records),
	)
	return res, nil
}

// RunAvailability scrapes availability for every location whose latest
// revision has a connector group of the given speed, and ingests it.
func (a *App) RunAvailability(ctx context.Context, speed string) (*ingest.Result, error) {
	ids, err := a.pipeline.Resolver().LocationsBySpeed(ctx, a.store.DB(), speed)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		a.logger.Warn("no locations for speed, run the locations scraper first",
			zap.String("speed", speed),
		)
	}

	records, err := a.scraper.Availability(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("scrape availability: %w", err)
	}
	res, err := a.pipeline.RunAvailability(ctx, records)
	if err != nil {
		return res, err
	}
	a.logger.Info(fmt.Sprintf("Inserted %d rows. Found ids for %d plugs", res.Success, res.Plugs),
		zap.String("run_id", res.RunID),
		zap.String("speed", speed),
	)
	return res, nil
}
