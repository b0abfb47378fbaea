package ingest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/store/sqlite"
)

// harness holds a fresh database and the pipeline under test.
type harness struct {
	t     *testing.T
	ctx   context.Context
	store *sqlite.Store
	db    *sql.DB
	pipe  *Pipeline
	now   time.Time
	warns *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "chargelog.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := &harness{
		t:     t,
		ctx:   ctx,
		store: s,
		db:    s.DB(),
		now:   time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	core, warns := observer.New(zapcore.WarnLevel)
	h.warns = warns
	h.pipe, err = New(Config{
		DB:     s.DB(),
		Logger: zap.New(core),
		Now:    func() time.Time { return h.now },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) count(table string, where ...string) int {
	h.t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if len(where) > 0 {
		q += " WHERE " + where[0]
	}
	var n int
	require.NoError(h.t, h.db.QueryRow(q).Scan(&n))
	return n
}

func (h *harness) locations(data string) map[string]*model.LocationRecord {
	h.t.Helper()
	recs, _, err := model.DecodeLocations([]byte(data))
	require.NoError(h.t, err)
	return recs
}

func (h *harness) availability(data string) map[string]*model.LocationRecord {
	h.t.Helper()
	recs, _, err := model.DecodeAvailability([]byte(data))
	require.NoError(h.t, err)
	return recs
}

func (h *harness) prices(data string) map[string]*model.PriceRecord {
	h.t.Helper()
	recs, _, err := model.DecodePrices([]byte(data))
	require.NoError(h.t, err)
	return recs
}

func (h *harness) ingestLocations(data string) *Result {
	h.t.Helper()
	res, err := h.pipe.RunLocations(h.ctx, h.locations(data))
	require.NoError(h.t, err)
	return res
}

func (h *harness) ingestAvailability(data string) *Result {
	h.t.Helper()
	res, err := h.pipe.RunAvailability(h.ctx, h.availability(data))
	require.NoError(h.t, err)
	return res
}

func (h *harness) ingestPrices(data string) *Result {
	h.t.Helper()
	res, err := h.pipe.RunPrices(h.ctx, h.prices(data))
	require.NoError(h.t, err)
	return res
}

const locationL1 = `{
  "L1": {
    "locationId": "L1",
    "revision": 1,
    "name": "Depot",
    "isRoamingPartner": true,
    "coordinates": {"lat": 59.91, "lng": 10.75},
    "timestamp": {"seconds": 1710000000, "nanoseconds": 5},
    "connectorCounts": [{"plugType": "Type2", "speed": "Standard", "count": 4}]
  }
}`

const availabilityL1 = `{
  "L1": {
    "data": {
      "locationId": "L1",
      "revision": 1,
      "publicAccess": {"isRoamingAllowed": true},
      "evses": {
        "E1": {
          "evseId": "E1",
          "vendorName": "Acme",
          "connectors": {
            "1": {"evseConnectorId": "E1-1", "plugType": "Type2", "powerType": "AC", "maxPowerKw": 22, "connectorId": 1, "speed": "Standard"}
          }
        }
      },
      "availability": {
        "evses": {
          "E1": {"evseId": "E1", "status": "Available", "timestamp": "2025-03-14T11:59:00Z"}
        }
      }
    }
  }
}`
