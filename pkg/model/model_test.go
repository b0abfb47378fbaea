package model

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextAcceptsScalars(t *testing.T) {
	tests := []struct {
		in   string
		want Text
	}{
		{`"E1-1"`, NewText("E1-1")},
		{`7`, NewText("7")},
		{`1.5`, NewText("1.5")},
		{`true`, NewText("true")},
		{`null`, Text{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Text
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextValue(t *testing.T) {
	v, err := Text{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewText("42").Value()
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	b, err := json.Marshal(struct{ A, B Text }{NewText("x"), Text{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A": "x", "B": null}`, string(b))
}

func TestDecodeLocationsUnwraps(t *testing.T) {
	bare := `{"L1": {"locationId": "L1", "revision": 2, "connectorCounts": []}}`
	wrapped := `{"locations": ` + bare + `}`

	for _, doc := range []string{bare, wrapped} {
		recs, bad, err := DecodeLocations([]byte(doc))
		require.NoError(t, err)
		assert.Empty(t, bad)
		require.Contains(t, recs, "L1")
		assert.Equal(t, int64(2), *recs["L1"].Revision)

		buckets, fallback := recs["L1"].ConnectorBuckets()
		assert.False(t, fallback, "an empty connectorCounts array is not missing")
		assert.Empty(t, buckets)
	}

	_, _, err := DecodeLocations([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestConnectorBucketsFallback(t *testing.T) {
	recs, _, err := DecodeLocations([]byte(`{"L1": {"plugTypes": [{"plugType": "CCS", "speed": "Rapid", "count": 2}]}}`))
	require.NoError(t, err)

	buckets, fallback := recs["L1"].ConnectorBuckets()
	assert.True(t, fallback)
	require.Len(t, buckets, 1)
	assert.Equal(t, "CCS", *buckets[0].PlugType)
}

func TestDecodeAvailability(t *testing.T) {
	recs, bad, err := DecodeAvailability([]byte(`{
	  "L1": {"data": {"locationId": "L1", "revision": 1, "publicAccess": {"isRoamingAllowed": false},
	    "evses": {"E1": {"evseId": "E1", "connectors": {"1": {"connectorId": 1, "evseConnectorId": "E1*1"}}}},
	    "availability": {"evses": {"E1": {"status": "Charging", "timestamp": 1710000000}}}}},
	  "L2": {"locationId": "L2", "revision": 3}
	}`))
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Len(t, recs, 2)

	l1 := recs["L1"]
	require.NotNil(t, l1.RoamingAllowed())
	assert.False(t, *l1.RoamingAllowed())
	conn := l1.Evses["E1"].Connectors["1"]
	assert.Equal(t, NewText("1"), conn.ConnectorID)
	assert.Equal(t, NewText("E1*1"), conn.EvseConnectorID)
	assert.Equal(t, NewText("1710000000"), l1.Availability.Evses["E1"].Timestamp)

	assert.Equal(t, "L2", recs["L2"].LocationID)
	assert.Nil(t, recs["L2"].RoamingAllowed())

	recs, bad, err = DecodeAvailability([]byte(`{"L1": "oops", "L2": null}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, bad.Keys())
	assert.ErrorContains(t, bad["L1"], "location L1")
	assert.Contains(t, recs, "L1")
	assert.Nil(t, recs["L1"])
	assert.Nil(t, recs["L2"])
}

func TestDecodeLocationsKeepsValidSiblings(t *testing.T) {
	for _, doc := range []string{
		`{"locations": {"L1": {"locationId": "L1", "revision": 1}, "L2": {"revision": "two"}}}`,
		`{"L1": {"locationId": "L1", "revision": 1}, "L2": {"revision": "two"}}`,
	} {
		recs, bad, err := DecodeLocations([]byte(doc))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		require.NotNil(t, recs["L1"])
		assert.Equal(t, int64(1), *recs["L1"].Revision)
		assert.Nil(t, recs["L2"])
		assert.Equal(t, []string{"L2"}, bad.Keys())
	}

	_, _, err := DecodeLocations([]byte(`{"locations": [1]}`))
	assert.Error(t, err)
}

func TestDecodeLocationMalformedEnvelope(t *testing.T) {
	rec, err := DecodeLocation([]byte(`{"locationId": "L1", "revision": 4}`))
	require.NoError(t, err)
	assert.Equal(t, "L1", rec.LocationID)

	_, err = DecodeLocation([]byte(`{"data": {"locationId": "L1", "revision": "four"}}`))
	assert.Error(t, err, "a broken envelope must not decode as an empty record")
}

func TestAvailabilityKeepsValidObservations(t *testing.T) {
	rec, err := DecodeLocation([]byte(`{"data": {"locationId": "L1", "revision": 1,
	  "availability": {"evses": {
	    "E1": {"status": "Available"},
	    "E2": {"status": 3},
	    "E3": "garbage",
	    "E4": null
	  }}}}`))
	require.NoError(t, err)
	assert.Equal(t, "L1", rec.LocationID)

	evses := rec.Availability.Evses
	require.Len(t, evses, 4)
	require.NotNil(t, evses["E1"])
	assert.Equal(t, "Available", *evses["E1"].Status)
	assert.Nil(t, evses["E2"])
	assert.Nil(t, evses["E3"])
	assert.Nil(t, evses["E4"])
	assert.Equal(t, []string{"E2", "E3"}, rec.Availability.Invalid.Keys())
}

func TestDecodePricesKeepsRawTimeTable(t *testing.T) {
	recs, bad, err := DecodePrices([]byte(`{
	  "L1": {"locationId": "L1", "plugs": [{
	    "connectors": [{"evseId": "E1", "plugType": "CCS", "speed": "Fast"}],
	    "prices": [{"product": "Standard", "isFlat": false, "timeTable": [{"price_string": "3,50"}, "garbage"]}]
	  }]}
	}`))
	require.NoError(t, err)
	assert.Empty(t, bad)

	entry := recs["L1"].Plugs[0].Prices[0]
	require.Len(t, entry.TimeTable, 2)

	var slot TimeSlot
	require.NoError(t, json.Unmarshal(entry.TimeTable[0], &slot))
	assert.Equal(t, NewText("3,50"), slot.Price)
	assert.Error(t, json.Unmarshal(entry.TimeTable[1], &slot))
}

func TestTimeSlotNumericPrice(t *testing.T) {
	var slot TimeSlot
	require.NoError(t, json.Unmarshal([]byte(`{"from_date_string": "14.03.2025", "price_string": 3.5}`), &slot))
	assert.Equal(t, NewText("3.5"), slot.Price)
	assert.Equal(t, "14.03.2025", *slot.FromDate)
}

func TestDecodePricesKeepsValidSiblings(t *testing.T) {
	recs, bad, err := DecodePrices([]byte(`{"L1": {"plugs": []}, "L2": {"plugs": "none"}}`))
	require.NoError(t, err)
	assert.NotNil(t, recs["L1"])
	assert.Nil(t, recs["L2"])
	assert.Equal(t, []string{"L2"}, bad.Keys())
}
