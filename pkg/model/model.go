// Package model defines the external record shapes produced by the scrapers and
// the typed rows written to the store.
//
// External records are read-only inputs: the engine never mutates them. Optional
// upstream fields are pointers so that a missing value is stored as NULL rather
// than as a zero value.
package model

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// ────────────────────────────────────────────────────────────────────────────────
// Text - JSON scalar kept in textual form
// ────────────────────────────────────────────────────────────────────────────────

// Text is a nullable JSON scalar kept in its textual form. Upstream payloads are
// not consistent about quoting identifiers and timestamps, so strings, numbers
// and booleans are all accepted.
type Text struct {
	String string
	Valid  bool
}

// NewText returns a valid Text holding s.
func NewText(s string) Text {
	return Text{String: s, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Text{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = NewText(s)
		return nil
	}
	*t = NewText(string(data))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.String)
}

// Value implements driver.Valuer.
func (t Text) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.String, nil
}

// ────────────────────────────────────────────────────────────────────────────────
// Location records (locations and availability endpoints)
// ────────────────────────────────────────────────────────────────────────────────

// LocationRecord is one location document. The locations endpoint returns a set of
// these keyed by locationId; the availability endpoint returns a single one with
// Availability populated.
type LocationRecord struct {
	LocationID       string        `json:"locationId"`
	Revision         *int64        `json:"revision"`
	Name             *string       `json:"name"`
	PartnerStatus    *string       `json:"partnerStatus"`
	IsRoamingPartner *bool         `json:"isRoamingPartner"`
	Origin           *string       `json:"origin"`
	Coordinates      *Coordinates  `json:"coordinates"`
	Timestamp        *SnapshotTime `json:"timestamp"`
	PublicAccess     *PublicAccess `json:"publicAccess"`
	Visibility       *string       `json:"visibility"`

	// ConnectorCounts is nil when the field is absent from the payload; an empty
	// JSON array decodes to an empty, non-nil slice.
	ConnectorCounts []ConnectorCount `json:"connectorCounts"`
	PlugTypes       []ConnectorCount `json:"plugTypes"`

	Evses        map[string]*Evse `json:"evses"`
	Availability *Availability    `json:"availability"`
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// SnapshotTime is the upstream snapshot timestamp.
type SnapshotTime struct {
	Seconds     *int64 `json:"seconds"`
	Nanoseconds *int64 `json:"nanoseconds"`
}

// PublicAccess carries roaming permissions.
type PublicAccess struct {
	IsRoamingAllowed *bool `json:"isRoamingAllowed"`
}

// ConnectorCount is one plug-type/speed bucket of a location.
type ConnectorCount struct {
	PlugType *string `json:"plugType"`
	Speed    *string `json:"speed"`
	Count    *int64  `json:"count"`
}

// Evse is the plug metadata of one EVSE, keyed by evseId in LocationRecord.Evses.
type Evse struct {
	EvseID     string                `json:"evseId"`
	VendorName *string               `json:"vendorName"`
	Connectors map[string]*Connector `json:"connectors"`
}

// Connector is one physical connector of an EVSE.
type Connector struct {
	EvseConnectorID Text     `json:"evseConnectorId"`
	PlugType        *string  `json:"plugType"`
	PowerType       *string  `json:"powerType"`
	MaxPowerKw      *float64 `json:"maxPowerKw"`
	ConnectorID     Text     `json:"connectorId"`
	Speed           *string  `json:"speed"`
}

// Availability holds live status observations keyed by evseId. Entries that
// fail to decode are kept as nil in Evses and their errors in Invalid, so one bad
// observation does not discard the others.
type Availability struct {
	Evses   map[string]*EvseStatus `json:"evses"`
	Invalid Malformed              `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Availability) UnmarshalJSON(data []byte) error {
	var raw struct {
		Evses map[string]json.RawMessage `json:"evses"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Availability{}
	if raw.Evses == nil {
		return nil
	}
	a.Evses, a.Invalid = decodeEach[EvseStatus](raw.Evses)
	return nil
}

// EvseStatus is one live observation.
type EvseStatus struct {
	EvseID    string  `json:"evseId"`
	Status    *string `json:"status"`
	Timestamp Text    `json:"timestamp"`
}

// ConnectorBuckets returns the connector buckets of the record and whether the
// secondary plugTypes field had to be used.
func (r *LocationRecord) ConnectorBuckets() ([]ConnectorCount, bool) {
	if r.ConnectorCounts != nil {
		return r.ConnectorCounts, false
	}
	return r.PlugTypes, true
}

// RoamingAllowed returns publicAccess.isRoamingAllowed, nil when absent.
func (r *LocationRecord) RoamingAllowed() *bool {
	if r.PublicAccess == nil {
		return nil
	}
	return r.PublicAccess.IsRoamingAllowed
}

// ────────────────────────────────────────────────────────────────────────────────
// Price records
// ────────────────────────────────────────────────────────────────────────────────

// PriceRecord is the pricing document of one location.
type PriceRecord struct {
	LocationID string      `json:"locationId"`
	Plugs      []PlugGroup `json:"plugs"`
}

// PlugGroup is a set of connectors sharing one price list.
type PlugGroup struct {
	Connectors []PlugConnector `json:"connectors"`
	Prices     []PriceEntry    `json:"prices"`
}

// PlugConnector identifies one connector inside a PlugGroup.
type PlugConnector struct {
	EvseID   string `json:"evseId"`
	PlugType string `json:"plugType"`
	Speed    string `json:"speed"`
}

// PriceEntry is one tariff product with its time table. Time table entries are
// kept raw so that malformed entries can be stored verbatim.
type PriceEntry struct {
	Product   *string           `json:"product"`
	IsFlat    *bool             `json:"isFlat"`
	TimeTable []json.RawMessage `json:"timeTable"`
}

// TimeSlot is the decoded form of a time table entry.
type TimeSlot struct {
	FromDate  *string `json:"from_date_string"`
	FromTime  *string `json:"from_time_string"`
	ToDate    *string `json:"to_date_string"`
	ToTime    *string `json:"to_time_string"`
	Price     Text    `json:"price_string"`
	IsNextDay *bool   `json:"is_next_day"`
}

// ────────────────────────────────────────────────────────────────────────────────
// Decoding helpers
// ────────────────────────────────────────────────────────────────────────────────

// Malformed maps the key of each entry that failed to decode to its error.
type Malformed map[string]error

// Keys returns the keys of m in sorted order.
func (m Malformed) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeEach decodes every entry of raw on its own. An entry that fails is
// stored as nil and reported in the returned Malformed, which is nil when all
// entries decoded.
func decodeEach[T any](raw map[string]json.RawMessage) (map[string]*T, Malformed) {
	out := make(map[string]*T, len(raw))
	var bad Malformed
	for key, msg := range raw {
		var v *T
		if err := json.Unmarshal(msg, &v); err != nil {
			if bad == nil {
				bad = make(Malformed)
			}
			bad[key] = err
			v = nil
		}
		out[key] = v
	}
	return out, bad
}

// DecodeLocations decodes a set of location records keyed by locationId. A
// top-level {"locations": {...}} wrapper, as written by the locations scraper, is
// unwrapped. Locations that fail to decode are returned as nil entries and
// listed in Malformed; only a document that is not an object is an error.
func DecodeLocations(data []byte) (map[string]*LocationRecord, Malformed, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, err
	}
	if inner, ok := top["locations"]; ok {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(inner, &wrapped); err != nil {
			return nil, nil, fmt.Errorf("locations: %w", err)
		}
		top = wrapped
	}
	recs, bad := decodeEach[LocationRecord](top)
	return recs, bad, nil
}

// DecodeLocation decodes one location document as returned by the availability
// endpoint. A {"data": {...}} envelope is unwrapped; a present but malformed
// envelope is an error.
func DecodeLocation(msg []byte) (*LocationRecord, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(msg, &top); err != nil {
		return nil, err
	}
	if data, ok := top["data"]; ok && !isNull(data) {
		msg = data
	}
	var rec LocationRecord
	if err := json.Unmarshal(msg, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DecodeAvailability decodes availability documents keyed by locationId. Each
// entry is decoded with DecodeLocation; entries that fail are returned as nil
// and listed in Malformed.
func DecodeAvailability(data []byte) (map[string]*LocationRecord, Malformed, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	out := make(map[string]*LocationRecord, len(raw))
	var bad Malformed
	for id, msg := range raw {
		if isNull(msg) {
			out[id] = nil
			continue
		}
		rec, err := DecodeLocation(msg)
		if err != nil {
			if bad == nil {
				bad = make(Malformed)
			}
			bad[id] = fmt.Errorf("location %s: %w", id, err)
		}
		out[id] = rec
	}
	return out, bad, nil
}

// DecodePrices decodes price documents keyed by locationId. Entries that fail
// are returned as nil and listed in Malformed.
func DecodePrices(data []byte) (map[string]*PriceRecord, Malformed, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	recs, bad := decodeEach[PriceRecord](raw)
	return recs, bad, nil
}

func isNull(msg json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(msg), []byte("null"))
}
