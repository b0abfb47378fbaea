package ingest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeBuckets = `{
  "L1": {
    "locationId": "L1",
    "revision": %d,
    "connectorCounts": [
      {"plugType": "Type2", "speed": "Standard", "count": 4},
      {"plugType": "CCS", "speed": "Fast", "count": 2},
      {"plugType": "CHAdeMO", "speed": "Fast", "count": 1}
    ]
  }
}`

func TestLocationsPipeline(t *testing.T) {
	h := newHarness(t)

	res := h.ingestLocations(locationL1)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Success)
	assert.Zero(t, res.Failed)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, 1, h.count("locations"))
	assert.Equal(t, 1, h.count("connectorGroups", "plugType = 'Type2' AND speed = 'Standard' AND count = 4"))

	var lat float64
	var ts int64
	require.NoError(t, h.db.QueryRow(`SELECT coords_lat, ts_seconds FROM locations`).Scan(&lat, &ts))
	assert.InDelta(t, 59.91, lat, 1e-9)
	assert.Equal(t, int64(1710000000), ts)
}

func TestLocationsConnectorGroupsAppendPerRevision(t *testing.T) {
	h := newHarness(t)

	h.ingestLocations(fmt.Sprintf(threeBuckets, 1))
	assert.Equal(t, 3, h.count("connectorGroups"))

	// Same revision again: the rows exist, nothing is appended or lost.
	res := h.ingestLocations(fmt.Sprintf(threeBuckets, 1))
	assert.Equal(t, 4, res.Duplicates)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 3, h.count("connectorGroups"))

	// A new revision appends a full new set.
	h.ingestLocations(fmt.Sprintf(threeBuckets, 2))
	assert.Equal(t, 6, h.count("connectorGroups"))
	assert.Equal(t, 3, h.count("connectorGroups", "revision = 2"))
	assert.Equal(t, 3, h.count("latest_connector_groups"))
	assert.Equal(t, 2, h.count("connectorGroups", "connectorGroup = 2"))
}

func TestLocationsFallbackToPlugTypes(t *testing.T) {
	h := newHarness(t)

	res := h.ingestLocations(`{
	  "A": {"locationId": "A", "revision": 1, "plugTypes": [{"plugType": "CCS", "speed": "Rapid", "count": 2}]},
	  "B": {"locationId": "B", "revision": 1, "connectorCounts": []}
	}`)
	assert.Equal(t, 1, res.FallbackPlugTypes)
	assert.Equal(t, 1, h.count("connectorGroups", "locationId = 'A' AND speed = 'Rapid'"))
	assert.Equal(t, 0, h.count("connectorGroups", "locationId = 'B'"))
}

func TestLocationsMissingFields(t *testing.T) {
	h := newHarness(t)

	res := h.ingestLocations(`{
	  "KEY1": {"revision": 4},
	  "NOREV": {"locationId": "NOREV"}
	}`)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.FallbackPlugTypes)

	var name any
	require.NoError(t, h.db.QueryRow(`SELECT name FROM locations WHERE locationId = 'KEY1' AND revision = 4`).Scan(&name))
	assert.Nil(t, name)
}

func TestLocationsSkipsMalformedRecord(t *testing.T) {
	h := newHarness(t)

	res := h.ingestLocations(`{"locations": {
	  "L1": {"locationId": "L1", "revision": 1, "connectorCounts": [{"plugType": "CCS", "speed": "Fast", "count": 2}]},
	  "L2": {"locationId": "L2", "revision": "two"}
	}}`)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, h.count("locations", "locationId = 'L1'"))
	assert.Equal(t, 1, h.count("connectorGroups", "locationId = 'L1'"))
	assert.Zero(t, h.count("locations", "locationId = 'L2'"))
}

func TestLatestRevisionOnly(t *testing.T) {
	h := newHarness(t)
	for rev := 1; rev <= 3; rev++ {
		h.ingestLocations(fmt.Sprintf(threeBuckets, rev))
	}

	rows, err := h.db.Query(`SELECT DISTINCT revision FROM latest_connector_groups WHERE locationId = 'L1'`)
	require.NoError(t, err)
	defer rows.Close()
	var revs []int
	for rows.Next() {
		var r int
		require.NoError(t, rows.Scan(&r))
		revs = append(revs, r)
	}
	assert.Equal(t, []int{3}, revs)

	ids, err := h.pipe.Resolver().LocationsBySpeed(h.ctx, h.db, "Fast")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, ids)
}
