package model

// ────────────────────────────────────────────────────────────────────────────────
// Typed rows - one struct per table, explicit column lists
// ────────────────────────────────────────────────────────────────────────────────

// Table names.
const (
	TableLocations              = "locations"
	TableEvseIDs                = "evseIds"
	TableConnectorGroups        = "connectorGroups"
	TableAvailabilityLog        = "availabilityLog"
	TableAvailabilityAggregated = "availabilityAggregated"
	TablePriceGroups            = "priceGroups"
	TablePriceTimeSlots         = "priceTimeSlots"
)

// LocationRow is one immutable (locationId, revision) snapshot.
type LocationRow struct {
	LocationID       string
	Revision         int64
	Name             *string
	PartnerStatus    *string
	IsRoamingPartner *bool
	Origin           *string
	Lat              *float64
	Lng              *float64
	TsSeconds        *int64
	TsNanoseconds    *int64
}

var locationColumns = []string{
	"locationId", "revision", "name", "partnerStatus", "isRoamingPartner",
	"origin", "coords_lat", "coords_lng", "ts_seconds", "ts_nanoseconds",
}

func (r *LocationRow) Table() string     { return TableLocations }
func (r *LocationRow) Columns() []string { return locationColumns }
func (r *LocationRow) Values() []any {
	return []any{
		r.LocationID, r.Revision, r.Name, r.PartnerStatus, r.IsRoamingPartner,
		r.Origin, r.Lat, r.Lng, r.TsSeconds, r.TsNanoseconds,
	}
}

// NewLocationRow flattens a location record into its row.
func NewLocationRow(locationID string, revision int64, rec *LocationRecord) *LocationRow {
	row := &LocationRow{
		LocationID:       locationID,
		Revision:         revision,
		Name:             rec.Name,
		PartnerStatus:    rec.PartnerStatus,
		IsRoamingPartner: rec.IsRoamingPartner,
		Origin:           rec.Origin,
	}
	if rec.Coordinates != nil {
		row.Lat = rec.Coordinates.Lat
		row.Lng = rec.Coordinates.Lng
	}
	if rec.Timestamp != nil {
		row.TsSeconds = rec.Timestamp.Seconds
		row.TsNanoseconds = rec.Timestamp.Nanoseconds
	}
	return row
}

// EvseRow is the plug metadata of one EVSE within a revision.
type EvseRow struct {
	LocationID       string
	Revision         int64
	EvseID           string
	IsRoamingPartner *bool
	IsRoamingAllowed *bool
	Visibility       *string
	VendorName       *string
	EvseConnectorID  Text
	PlugType         *string
	PowerType        *string
	MaxPowerKw       *float64
	ConnectorID      Text
	Speed            *string
}

var evseColumns = []string{
	"locationId", "revision", "evseId", "isRoamingPartner", "isRoamingAllowed",
	"visibility", "vendorName", "evseConnectorId", "plugType", "powerType",
	"maxPowerKw", "connectorId", "speed",
}

func (r *EvseRow) Table() string     { return TableEvseIDs }
func (r *EvseRow) Columns() []string { return evseColumns }
func (r *EvseRow) Values() []any {
	return []any{
		r.LocationID, r.Revision, r.EvseID, r.IsRoamingPartner, r.IsRoamingAllowed,
		r.Visibility, r.VendorName, r.EvseConnectorID, r.PlugType, r.PowerType,
		r.MaxPowerKw, r.ConnectorID, r.Speed,
	}
}

// ConnectorGroupRow is one plug-type/speed bucket of a revision.
type ConnectorGroupRow struct {
	LocationID     string
	Revision       int64
	ConnectorGroup int64
	PlugType       *string
	Speed          *string
	Count          *int64
}

var connectorGroupColumns = []string{
	"locationId", "revision", "connectorGroup", "plugType", "speed", "count",
}

func (r *ConnectorGroupRow) Table() string     { return TableConnectorGroups }
func (r *ConnectorGroupRow) Columns() []string { return connectorGroupColumns }
func (r *ConnectorGroupRow) Values() []any {
	return []any{r.LocationID, r.Revision, r.ConnectorGroup, r.PlugType, r.Speed, r.Count}
}

// AvailabilityRow is one live status observation of an EVSE.
type AvailabilityRow struct {
	LocationID string
	Revision   int64
	EvseID     string
	Status     *string
	Timestamp  Text
}

var availabilityColumns = []string{"locationId", "revision", "evseId", "status", "timestamp"}

func (r *AvailabilityRow) Table() string     { return TableAvailabilityLog }
func (r *AvailabilityRow) Columns() []string { return availabilityColumns }
func (r *AvailabilityRow) Values() []any {
	return []any{r.LocationID, r.Revision, r.EvseID, r.Status, r.Timestamp}
}

// AvailabilityAggregateRow summarizes availability per connector group.
type AvailabilityAggregateRow struct {
	LocationID     string
	Revision       int64
	ConnectorGroup int64
	AvailableCount int64
	TotalCount     int64
	CreatedAt      int64
}

var availabilityAggregateColumns = []string{
	"locationId", "revision", "connectorGroup", "availableCount", "totalCount", "createdAt",
}

func (r *AvailabilityAggregateRow) Table() string     { return TableAvailabilityAggregated }
func (r *AvailabilityAggregateRow) Columns() []string { return availabilityAggregateColumns }
func (r *AvailabilityAggregateRow) Values() []any {
	return []any{r.LocationID, r.Revision, r.ConnectorGroup, r.AvailableCount, r.TotalCount, r.CreatedAt}
}

// PriceGroupRow is a content-addressed cluster of connectors sharing a price list.
// The surrogate priceGroupId is assigned by the store.
type PriceGroupRow struct {
	LocationID     string
	EvseIDsHash    string
	Revision       int64
	ConnectorGroup int64
	PlugType       string
	Speed          string
	EvseIDsRawData string
	MixedPlugTypes bool
	MixedSpeeds    bool
}

var priceGroupColumns = []string{
	"locationId", "evseIdsHash", "revision", "connectorGroup", "plugType", "speed",
	"evseIdsRawData", "mixedPlugTypes", "mixedSpeeds",
}

func (r *PriceGroupRow) Table() string     { return TablePriceGroups }
func (r *PriceGroupRow) Columns() []string { return priceGroupColumns }
func (r *PriceGroupRow) Values() []any {
	return []any{
		r.LocationID, r.EvseIDsHash, r.Revision, r.ConnectorGroup, r.PlugType, r.Speed,
		r.EvseIDsRawData, r.MixedPlugTypes, r.MixedSpeeds,
	}
}

// PriceTimeSlotRow is one priced interval of a PriceGroup.
type PriceTimeSlotRow struct {
	PriceGroupID     int64
	Product          *string
	IsFlat           *bool
	SlotIndex        int64
	IsCurrent        bool
	FromDatetime     *string
	ToDatetime       *string
	Price            *string
	IsNextDay        *bool
	TimeTableRawData string
}

var priceTimeSlotColumns = []string{
	"priceGroupId", "product", "isFlat", "slotIndex", "isCurrent",
	"from_datetime", "to_datetime", "price", "is_next_day", "timeTableRawData",
}

func (r *PriceTimeSlotRow) Table() string     { return TablePriceTimeSlots }
func (r *PriceTimeSlotRow) Columns() []string { return priceTimeSlotColumns }
func (r *PriceTimeSlotRow) Values() []any {
	return []any{
		r.PriceGroupID, r.Product, r.IsFlat, r.SlotIndex, r.IsCurrent,
		r.FromDatetime, r.ToDatetime, r.Price, r.IsNextDay, r.TimeTableRawData,
	}
}
