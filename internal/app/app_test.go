package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/internal/config"
	"github.com/Zerofisher/chargelog/pkg/model"
)

const locationsDoc = `{
  "L1": {"locationId": "L1", "revision": 1, "connectorCounts": [{"plugType": "Type2", "speed": "Standard", "count": 1}]},
  "L2": {"locationId": "L2", "revision": 4, "connectorCounts": [{"plugType": "CCS", "speed": "Rapid", "count": 2}]}
}`

const availabilityDoc = `{
  "L1": {"data": {
    "locationId": "L1",
    "revision": 1,
    "evses": {"E1": {"evseId": "E1", "connectors": {"1": {"plugType": "Type2", "speed": "Standard"}}}},
    "availability": {"evses": {"E1": {"evseId": "E1", "status": "Available"}}}
  }}
}`

type fakeScraper struct {
	mu           sync.Mutex
	locations    map[string]*model.LocationRecord
	availability map[string]*model.LocationRecord
	locErr       error
	requested    [][]string
	locCalls     int
}

func newFakeScraper(t *testing.T) *fakeScraper {
	t.Helper()
	locs, _, err := model.DecodeLocations([]byte(locationsDoc))
	require.NoError(t, err)
	avail, _, err := model.DecodeAvailability([]byte(availabilityDoc))
	require.NoError(t, err)
	return &fakeScraper{locations: locs, availability: avail}
}

func (f *fakeScraper) Locations(context.Context) (map[string]*model.LocationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locCalls++
	return f.locations, f.locErr
}

func (f *fakeScraper) Availability(_ context.Context, ids []string) (map[string]*model.LocationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, ids)
	out := make(map[string]*model.LocationRecord)
	for _, id := range ids {
		if rec, ok := f.availability[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func newTestApp(t *testing.T, mutate func(*config.Config), opts ...Option) (*App, *fakeScraper) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	if mutate != nil {
		mutate(cfg)
	}
	cfg.Normalize()
	require.NoError(t, cfg.Validate())

	fake := newFakeScraper(t)
	a, err := New(context.Background(), cfg, zap.NewNop(), append([]Option{WithScraper(fake)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, fake
}

func countRows(t *testing.T, a *App, table string) int {
	t.Helper()
	var n int
	require.NoError(t, a.Store().DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRunLocationsThenAvailability(t *testing.T) {
	a, fake := newTestApp(t, nil)
	ctx := context.Background()

	res, err := a.RunLocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, countRows(t, a, "locations"))

	res, err = a.RunAvailability(ctx, config.TypeStandard)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"L1"}}, fake.requested)
	assert.Equal(t, 1, res.Plugs)
	assert.Equal(t, 1, countRows(t, a, "availabilityLog"))
	assert.Equal(t, 1, countRows(t, a, "evseIds"))
}

func TestRunAvailabilityWithoutLocations(t *testing.T) {
	a, fake := newTestApp(t, nil)

	res, err := a.RunAvailability(context.Background(), config.TypeRapid)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{}}, fake.requested)
	assert.Equal(t, 0, res.Total)
}

func TestRunScheduleOnceAvailability(t *testing.T) {
	a, fake := newTestApp(t, func(c *config.Config) {
		c.Scraper.Type = "standard"
		c.Scraper.RunMode = config.RunOnce
	})

	require.NoError(t, a.RunSchedule(context.Background()))
	assert.Equal(t, 1, fake.locCalls)
	assert.Len(t, fake.requested, 1)
	assert.Equal(t, 1, countRows(t, a, "availabilityLog"))
}

func TestRunScheduleOnceLocations(t *testing.T) {
	a, fake := newTestApp(t, func(c *config.Config) {
		c.Scraper.Type = "Locations"
	})

	require.NoError(t, a.RunSchedule(context.Background()))
	assert.Equal(t, 1, fake.locCalls)
	assert.Empty(t, fake.requested)
}

func TestRunScheduleScheduledAvailability(t *testing.T) {
	a, fake := newTestApp(t, func(c *config.Config) {
		c.Scraper.Type = config.TypeRapid
		c.Scraper.RunMode = config.RunScheduled
		c.Scraper.MinuteInterval = 60
	}, WithFirstRunDelay(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, a.RunSchedule(ctx))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.locCalls)
	require.Len(t, fake.requested, 1)
	assert.Equal(t, []string{"L2"}, fake.requested[0])
}

func TestRunScheduleSurvivesLocationsFailure(t *testing.T) {
	a, fake := newTestApp(t, func(c *config.Config) {
		c.Scraper.Type = config.TypeStandard
	})
	fake.locErr = errors.New("upstream down")

	require.NoError(t, a.RunSchedule(context.Background()))
	assert.Len(t, fake.requested, 1)
}

func TestRunScheduleUnresolved(t *testing.T) {
	a, _ := newTestApp(t, nil)
	a.cfg.Scraper.Type = "Ultra"

	assert.ErrorIs(t, a.RunSchedule(context.Background()), ErrUnresolvedScraper)
}

func TestIngestFile(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()
	dir := t.TempDir()

	locPath := filepath.Join(dir, "locations.json")
	require.NoError(t, os.WriteFile(locPath, []byte(locationsDoc), 0o644))
	res, err := a.IngestFile(ctx, KindLocations, locPath)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)

	availPath := filepath.Join(dir, "availability.json")
	require.NoError(t, os.WriteFile(availPath, []byte(availabilityDoc), 0o644))
	res, err = a.IngestFile(ctx, KindAvailability, availPath)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)

	_, err = a.IngestBytes(ctx, "tariffs", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown record kind")

	_, err = a.IngestBytes(ctx, KindPrices, []byte(`[`))
	assert.Error(t, err)

	_, err = a.IngestFile(ctx, KindPrices, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestIngestBytesSkipsMalformedLocation(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	res, err := a.IngestBytes(ctx, KindLocations, []byte(`{"locations": {
	  "L1": {"locationId": "L1", "revision": 1, "connectorCounts": [{"plugType": "CCS", "speed": "Rapid", "count": 1}]},
	  "L2": {"locationId": "L2", "revision": "two"}
	}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Skipped)

	ids, err := a.Pipeline().Resolver().AllLocations(ctx, a.Store().DB())
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, ids)
}
