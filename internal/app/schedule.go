package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/internal/config"
	"github.com/Zerofisher/chargelog/pkg/schedule"
)

// ErrUnresolvedScraper is returned when the run mode and scraper type do not
// name a job.
var ErrUnresolvedScraper = errors.New("scraper configs could not be resolved")

// RunSchedule runs the configured scraper. The location list is always
// scraped first, so availability runs have connector groups to resolve
// against. In scheduled mode it blocks until ctx is done.
func (a *App) RunSchedule(ctx context.Context) error {
	sc := a.cfg.Scraper
	a.logger.Info("starting scraper",
		zap.String("type", sc.Type),
		zap.String("run_mode", sc.RunMode),
		zap.Int("minute_interval", sc.MinuteInterval),
		zap.Int("location_day_interval", sc.LocationDayInterval),
	)

	if _, err := a.RunLocations(ctx); err != nil {
		// Locations from earlier runs are still usable.
		a.logger.Error("initial locations scrape failed", zap.Error(err))
	}

	switch {
	case sc.RunMode == config.RunScheduled && sc.IsAvailability():
		s := schedule.New(a.logger.Named("schedule"))
		if err := s.Add(schedule.Job{
			Name:     "availability-" + sc.Type,
			Interval: time.Duration(sc.MinuteInterval) * time.Minute,
			FirstRun: a.firstRun,
			Run:      a.availabilityJob(sc.Type),
		}); err != nil {
			return err
		}
		return s.Start(ctx)

	case sc.RunMode == config.RunScheduled && sc.Type == config.TypeLocations:
		s := schedule.New(a.logger.Named("schedule"))
		if err := s.Add(schedule.Job{
			Name:     "locations",
			Interval: time.Duration(sc.LocationDayInterval) * 24 * time.Hour,
			Run: func(ctx context.Context) error {
				_, err := a.RunLocations(ctx)
				return err
			},
		}); err != nil {
			return err
		}
		return s.Start(ctx)

	case sc.RunMode == config.RunOnce && sc.Type == config.TypeLocations:
		a.logger.Info("locations scraped, exiting")
		return nil

	case sc.RunMode == config.RunOnce && sc.IsAvailability():
		_, err := a.RunAvailability(ctx, sc.Type)
		return err
	}

	a.logger.Error("Scraper configs could not be resolved",
		zap.String("type", sc.Type),
		zap.String("run_mode", sc.RunMode),
	)
	return ErrUnresolvedScraper
}

func (a *App) availabilityJob(speed string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := a.RunAvailability(ctx, speed)
		return err
	}
}
