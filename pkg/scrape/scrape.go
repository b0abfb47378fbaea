// Package scrape fetches raw location and availability documents from the
// upstream charging API. It never writes to the store.
package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Zerofisher/chargelog/pkg/model"
)

// Config holds configuration for the scraper.
type Config struct {
	// LocationsURL returns every location keyed by locationId.
	LocationsURL string

	// AvailabilityURL returns one location document. It must contain the
	// {locationId} placeholder.
	AvailabilityURL string

	// MaxWorkers bounds concurrent availability requests. Defaults to 1.
	MaxWorkers int

	// SleepBetween spaces requests out. Zero disables pacing.
	SleepBetween time.Duration

	// Timeout per request. Defaults to 30s.
	Timeout time.Duration

	// RetryCount is the number of retries per request.
	RetryCount int
}

// Client fetches upstream documents.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a scraper client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.SleepBetween > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.SleepBetween), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    client,
		limiter: limiter,
		logger:  logger,
	}
}

// Locations fetches the full location list.
func (c *Client) Locations(ctx context.Context) (map[string]*model.LocationRecord, error) {
	c.logger.Info("fetching locations", zap.String("url", c.cfg.LocationsURL))

	body, err := c.get(ctx, c.cfg.LocationsURL, nil)
	if err != nil {
		return nil, err
	}
	locations, bad, err := model.DecodeLocations(body)
	if err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	for _, id := range bad.Keys() {
		c.logger.Warn("malformed location",
			zap.String("location_id", id),
			zap.Error(bad[id]),
		)
	}

	c.logger.Info("retrieved locations", zap.Int("count", len(locations)))
	return locations, nil
}

// Availability fetches the availability document of every id. Ids that fail
// are logged and left out of the result.
func (c *Client) Availability(ctx context.Context, ids []string) (map[string]*model.LocationRecord, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]*model.LocationRecord, len(ids))
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxWorkers)

	for _, id := range ids {
		g.Go(func() error {
			rec, err := c.location(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed++
				c.logger.Warn("availability request failed",
					zap.String("location_id", id),
					zap.Error(err),
				)
				return nil
			}
			results[id] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info("availability scrape completed",
		zap.Int("requested", len(ids)),
		zap.Int("retrieved", len(results)),
		zap.Int("failed", failed),
	)
	return results, nil
}

func (c *Client) location(ctx context.Context, id string) (*model.LocationRecord, error) {
	body, err := c.get(ctx, c.cfg.AvailabilityURL, map[string]string{"locationId": id})
	if err != nil {
		return nil, err
	}
	rec, err := model.DecodeLocation(body)
	if err != nil {
		return nil, fmt.Errorf("decode location %s: %w", id, err)
	}
	return rec, nil
}

func (c *Client) get(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: status %d", resp.Request.URL, resp.StatusCode())
	}
	return resp.Body(), nil
}
