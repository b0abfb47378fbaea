package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndLocationThenAvailability(t *testing.T) {
	h := newHarness(t)

	h.ingestLocations(locationL1)
	res := h.ingestAvailability(availabilityL1)

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Healed)
	assert.Equal(t, 1, res.Plugs)

	assert.Equal(t, 1, h.count("locations"))
	assert.Equal(t, 1, h.count("connectorGroups"))
	assert.Equal(t, 1, h.count("evseIds"))
	assert.Equal(t, 1, h.count("availabilityLog"))

	var (
		plugType, vendor, connectorID string
		roaming                       bool
	)
	require.NoError(t, h.db.QueryRow(
		`SELECT plugType, vendorName, connectorId, isRoamingAllowed FROM evseIds WHERE evseId = 'E1'`,
	).Scan(&plugType, &vendor, &connectorID, &roaming))
	assert.Equal(t, "Type2", plugType)
	assert.Equal(t, "Acme", vendor)
	assert.Equal(t, "1", connectorID)
	assert.True(t, roaming)

	var status, ts string
	require.NoError(t, h.db.QueryRow(`SELECT status, timestamp FROM availabilityLog`).Scan(&status, &ts))
	assert.Equal(t, "Available", status)
	assert.Equal(t, "2025-03-14T11:59:00Z", ts)
}

func TestAvailabilityAggregates(t *testing.T) {
	h := newHarness(t)
	h.ingestLocations(locationL1)
	res := h.ingestAvailability(availabilityL1)

	assert.Equal(t, 1, res.Aggregated)
	assert.Zero(t, res.AggregateFailed)

	var available, total, createdAt int64
	require.NoError(t, h.db.QueryRow(
		`SELECT availableCount, totalCount, createdAt FROM availabilityAggregated WHERE locationId = 'L1' AND connectorGroup = 0`,
	).Scan(&available, &total, &createdAt))
	assert.Equal(t, int64(1), available)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, h.now.Unix(), createdAt)
}

func TestAvailabilityExistingEvseNeedsNoHealing(t *testing.T) {
	h := newHarness(t)
	h.ingestLocations(locationL1)
	h.ingestAvailability(availabilityL1)

	res := h.ingestAvailability(availabilityL1)
	assert.Equal(t, 1, res.Success)
	assert.Zero(t, res.Healed)
	assert.Equal(t, 1, h.count("evseIds"))
	assert.Equal(t, 2, h.count("availabilityLog"))
}

func TestAvailabilityUnknownLocationCountsFailure(t *testing.T) {
	h := newHarness(t)

	// No location row for L1 revision 1: healing cannot create the evse parent.
	res := h.ingestAvailability(availabilityL1)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Success)
	assert.Zero(t, res.Healed)
	assert.Equal(t, 0, h.count("availabilityLog"))
	assert.Equal(t, 0, h.count("evseIds"))
}

func TestAvailabilityBareEvseWithoutMetadata(t *testing.T) {
	h := newHarness(t)
	h.ingestLocations(locationL1)

	res := h.ingestAvailability(`{
	  "L1": {"locationId": "L1", "revision": 1, "visibility": "PUBLIC",
	         "availability": {"evses": {"E9": {"status": "Occupied", "timestamp": 1710000000}}}}
	}`)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Healed)
	assert.Zero(t, res.Plugs)

	var visibility string
	require.NoError(t, h.db.QueryRow(`SELECT visibility FROM evseIds WHERE evseId = 'E9'`).Scan(&visibility))
	assert.Equal(t, "PUBLIC", visibility)

	var ts string
	require.NoError(t, h.db.QueryRow(`SELECT timestamp FROM availabilityLog WHERE evseId = 'E9'`).Scan(&ts))
	assert.Equal(t, "1710000000", ts)
}

func TestAvailabilitySkipsMissingData(t *testing.T) {
	h := newHarness(t)
	h.ingestLocations(locationL1)

	res := h.ingestAvailability(`{
	  "L1": {"locationId": "L1", "revision": 1, "evses": {"E1": {}, "E2": {}}},
	  "L2": {"locationId": "L2", "revision": 1, "availability": {"evses": {"E1": null}}}
	}`)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, res.Plugs)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Total)
	assert.Equal(t, 0, h.count("availabilityLog"))
}

func TestAvailabilitySkipsMalformedEntries(t *testing.T) {
	h := newHarness(t)
	h.ingestLocations(locationL1)

	res := h.ingestAvailability(`{
	  "L1": {"data": {"locationId": "L1", "revision": 1, "availability": {"evses": {
	    "E1": {"status": "Available", "timestamp": 1710000000},
	    "E2": {"status": 3},
	    "E3": "garbage"
	  }}}},
	  "L2": {"data": {"locationId": "L2", "revision": "two"}}
	}`)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 1, h.count("availabilityLog"))
	assert.Equal(t, 1, h.count("availabilityLog", "evseId = 'E1'"))
	assert.Equal(t, 2, h.warns.FilterMessage("malformed availability entry").Len())
}

func TestAvailabilityMultipleConnectors(t *testing.T) {
	h := newHarness(t)
	h.ingestLocations(locationL1)

	res := h.ingestAvailability(`{
	  "L1": {"locationId": "L1", "revision": 1,
	    "evses": {"E1": {"evseId": "E1", "connectors": {
	      "2": {"plugType": "CCS", "speed": "Fast"},
	      "1": {"plugType": "Type2", "speed": "Standard"}
	    }}},
	    "availability": {"evses": {"E1": {"evseId": "E1", "status": "Available"}}}}
	}`)
	assert.Equal(t, 1, res.Success)

	// One evse row per (location, revision, evse); the lowest connector key wins.
	var plugType string
	require.NoError(t, h.db.QueryRow(`SELECT plugType FROM evseIds WHERE evseId = 'E1'`).Scan(&plugType))
	assert.Equal(t, "Type2", plugType)
	assert.Equal(t, 1, h.count("evseIds"))
	assert.Equal(t, 1, res.Healed)
	assert.Zero(t, h.warns.Len(), "duplicate evse rows of a healed evse are not warnings")
}
