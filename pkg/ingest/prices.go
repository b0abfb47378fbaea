package ingest

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/dedup"
	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/store"
)

// RunPrices resolves a PriceGroup per plug group and appends its time slots.
// Identical re-ingestion reuses the group and counts the slots as duplicates.
func (p *Pipeline) RunPrices(ctx context.Context, records map[string]*model.PriceRecord) (*Result, error) {
	start := time.Now()
	res := newResult("prices")

	err := each(ctx, p, records, func(key string, rec *model.PriceRecord) error {
		return p.inTx(ctx, func(tx *sql.Tx) error {
			return p.WritePrices(ctx, tx, key, rec, res)
		})
	})
	p.finish(res, start)
	return res, err
}

// WritePrices writes the price groups and time slots of one price record
// within tx and updates res.
func (p *Pipeline) WritePrices(ctx context.Context, tx store.DBTX, key string, rec *model.PriceRecord, res *Result) error {
	res.Records++
	if rec == nil {
		p.logger.Warn("empty price record", zap.String("key", key))
		res.Skipped++
		return nil
	}
	locationID := rec.LocationID
	if locationID == "" {
		locationID = key
	}

	for i := range rec.Plugs {
		if err := p.writePlugGroup(ctx, tx, locationID, i, &rec.Plugs[i], res); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) writePlugGroup(ctx context.Context, tx store.DBTX, locationID string, idx int, group *model.PlugGroup, res *Result) error {
	if len(group.Connectors) == 0 {
		p.logger.Warn("no connectors in plug group",
			zap.String("location_id", locationID),
			zap.Int("plug_group", idx),
		)
		res.Skipped++
		return nil
	}

	key := dedup.PriceGroupKey{LocationID: locationID}
	plugTypes := distinct(group.Connectors, func(c model.PlugConnector) string { return c.PlugType })
	speeds := distinct(group.Connectors, func(c model.PlugConnector) string { return c.Speed })
	key.EvseIDs = distinct(group.Connectors, func(c model.PlugConnector) string { return c.EvseID })
	if i := slices.Index(key.EvseIDs, ""); i >= 0 {
		key.EvseIDs = slices.Delete(key.EvseIDs, i, i+1)
		p.logger.Warn("connectors without evseId left out of price group",
			zap.String("location_id", locationID),
			zap.Int("plug_group", idx),
		)
	}
	if len(key.EvseIDs) == 0 {
		res.Skipped++
		return nil
	}
	key.PlugType = plugTypes[0]
	key.Speed = speeds[0]

	// The first value stands for the group when connectors disagree. The choice
	// depends on payload order.
	if len(plugTypes) > 1 {
		key.MixedPlugTypes = true
		p.logger.Warn("plug types are not homogeneous",
			zap.String("location_id", locationID),
			zap.Strings("plug_types", plugTypes),
		)
	}
	if len(speeds) > 1 {
		key.MixedSpeeds = true
		p.logger.Warn("speeds are not homogeneous",
			zap.String("location_id", locationID),
			zap.Strings("speeds", speeds),
		)
	}

	groupID, created, err := p.index.LookupOrCreate(ctx, tx, key)
	if err != nil {
		if !store.IsViolation(err) {
			return err
		}
		res.Total++
		res.Failed++
		p.logger.Warn("price group rejected",
			zap.String("location_id", locationID),
			zap.Error(err),
		)
		return nil
	}
	if created {
		res.PriceGroupsCreated++
	}

	var nsuccess, ntotal int
	for _, entry := range group.Prices {
		for slotIndex, raw := range entry.TimeTable {
			ntotal++
			row := p.timeSlotRow(locationID, groupID, entry, slotIndex, raw)
			err := p.writer.Write(ctx, tx, row)
			if err := res.count(err); err != nil {
				return err
			}
			if err != nil {
				p.rejected("price time slot rejected", err,
					zap.String("location_id", locationID),
					zap.Int64("price_group_id", groupID),
					zap.Int("slot_index", slotIndex),
				)
				continue
			}
			nsuccess++
		}
	}

	p.logger.Debug("price entries inserted",
		zap.String("location_id", locationID),
		zap.String("plug_type", key.PlugType),
		zap.String("speed", key.Speed),
		zap.Int("inserted", nsuccess),
		zap.Int("total", ntotal),
	)
	return nil
}

// timeSlotRow builds the row of one time table entry. Fields that cannot be
// decoded or parsed are stored as NULL; the entry itself is always kept in
// timeTableRawData.
func (p *Pipeline) timeSlotRow(locationID string, groupID int64, entry model.PriceEntry, slotIndex int, raw json.RawMessage) *model.PriceTimeSlotRow {
	row := &model.PriceTimeSlotRow{
		PriceGroupID:     groupID,
		Product:          entry.Product,
		IsFlat:           entry.IsFlat,
		SlotIndex:        int64(slotIndex),
		IsCurrent:        slotIndex == 0,
		TimeTableRawData: string(raw),
	}

	var slot model.TimeSlot
	if err := json.Unmarshal(raw, &slot); err != nil {
		p.logger.Warn("malformed time table entry, keeping raw data",
			zap.String("location_id", locationID),
			zap.Int("slot_index", slotIndex),
			zap.Error(err),
		)
		return row
	}

	from, err := parseSlotTime(slot.FromDate, slot.FromTime)
	if err != nil {
		p.logger.Warn("failed to parse from_datetime",
			zap.String("location_id", locationID),
			zap.Error(err),
		)
	}
	to, err := parseSlotTime(slot.ToDate, slot.ToTime)
	if err != nil {
		p.logger.Warn("failed to parse to_datetime",
			zap.String("location_id", locationID),
			zap.Error(err),
		)
	}

	row.FromDatetime = from
	row.ToDatetime = to
	if slot.Price.Valid {
		row.Price = &slot.Price.String
	}
	row.IsNextDay = slot.IsNextDay
	if !slot.Price.Valid {
		p.logger.Debug("time slot without price",
			zap.String("location_id", locationID),
			zap.Int("slot_index", slotIndex),
		)
	}
	return row
}

// distinct returns the distinct values of field in first-encountered order.
func distinct(conns []model.PlugConnector, field func(model.PlugConnector) string) []string {
	seen := make(map[string]struct{}, len(conns))
	var out []string
	for _, c := range conns {
		v := field(c)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
