package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newUpstream(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chargers/locations", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
		  "L1": {"locationId": "L1", "revision": 3, "connectorCounts": [{"plugType": "CCS", "speed": "Fast", "count": 2}]},
		  "L2": {"locationId": "L2", "revision": 1, "plugTypes": []}
		}`))
	})
	mux.HandleFunc("/api/chargers/location/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		id := strings.TrimPrefix(r.URL.Path, "/api/chargers/location/")
		if id == "BROKEN" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"locationId": "` + id + `", "revision": 3,
		  "availability": {"evses": {"E1": {"evseId": "E1", "status": "Available"}}}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(srv *httptest.Server, workers int) *Client {
	return New(Config{
		LocationsURL:    srv.URL + "/api/chargers/locations",
		AvailabilityURL: srv.URL + "/api/chargers/location/{locationId}",
		MaxWorkers:      workers,
		Timeout:         5 * time.Second,
	}, zap.NewNop())
}

func TestLocations(t *testing.T) {
	srv, _ := newUpstream(t)
	c := newTestClient(srv, 1)

	locs, err := c.Locations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, int64(3), *locs["L1"].Revision)
	_, fallback := locs["L1"].ConnectorBuckets()
	assert.False(t, fallback)
	_, fallback = locs["L2"].ConnectorBuckets()
	assert.True(t, fallback)
}

func TestAvailabilityOmitsFailures(t *testing.T) {
	srv, hits := newUpstream(t)
	c := newTestClient(srv, 4)

	recs, err := c.Availability(context.Background(), []string{"L1", "BROKEN", "L2", "L3"})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.NotContains(t, recs, "BROKEN")
	assert.Equal(t, "L3", recs["L3"].LocationID)
	assert.Equal(t, "Available", *recs["L1"].Availability.Evses["E1"].Status)
	assert.Equal(t, int32(4), hits.Load())
}

func TestAvailabilityPacing(t *testing.T) {
	srv, _ := newUpstream(t)
	c := New(Config{
		AvailabilityURL: srv.URL + "/api/chargers/location/{locationId}",
		MaxWorkers:      3,
		SleepBetween:    40 * time.Millisecond,
	}, nil)

	start := time.Now()
	recs, err := c.Availability(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestAvailabilityCancelled(t *testing.T) {
	srv, _ := newUpstream(t)
	c := newTestClient(srv, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Availability(ctx, []string{"L1"})
	assert.ErrorIs(t, err, context.Canceled)
}
