package ingest

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/store"
	"github.com/Zerofisher/chargelog/pkg/store/sqlite"
)

// StatusAvailable is the status counted as available in aggregates.
const StatusAvailable = "Available"

// RunAvailability writes one AvailabilityRecord per observed EVSE and one
// aggregate per latest connector group of each location. Missing Evse rows are
// synthesized from the connector metadata bundled in the same record.
func (p *Pipeline) RunAvailability(ctx context.Context, records map[string]*model.LocationRecord) (*Result, error) {
	start := time.Now()
	res := newResult("availability")
	healer := sqlite.NewHealer(p.writer, p.logger.Named("healer"))

	err := each(ctx, p, records, func(key string, rec *model.LocationRecord) error {
		return p.inTx(ctx, func(tx *sql.Tx) error {
			return p.WriteAvailability(ctx, tx, healer, key, rec, res)
		})
	})
	res.Healed = int(healer.Healed())
	p.finish(res, start)
	if err != nil {
		return res, err
	}
	if n := healer.Unhealed(); n > 0 {
		p.logger.Warn("availability rows failed after healing",
			zap.Int64("rows", n),
			zap.String("run_id", res.RunID),
		)
	}
	return res, nil
}

// WriteAvailability writes the availability observations of one location
// record within tx and updates res.
func (p *Pipeline) WriteAvailability(ctx context.Context, tx store.DBTX, healer *sqlite.Healer, key string, rec *model.LocationRecord, res *Result) error {
	res.Records++
	if rec == nil {
		p.logger.Warn("empty availability record", zap.String("key", key))
		res.Skipped++
		return nil
	}

	locationID := rec.LocationID
	if locationID == "" {
		locationID = key
	}
	res.Plugs += len(rec.Evses)

	if rec.Availability == nil || len(rec.Availability.Evses) == 0 {
		p.logger.Warn("no availability data", zap.String("location_id", locationID))
		res.Skipped++
		return nil
	}
	if rec.Revision == nil {
		p.logger.Warn("availability record without revision", zap.String("location_id", locationID))
		res.Skipped++
		return nil
	}
	revision := *rec.Revision

	for _, evseKey := range sortedKeys(rec.Availability.Evses) {
		st := rec.Availability.Evses[evseKey]
		if st == nil {
			p.logger.Warn("malformed availability entry",
				zap.String("location_id", locationID),
				zap.String("evse_id", evseKey),
				zap.Error(rec.Availability.Invalid[evseKey]),
			)
			res.Skipped++
			continue
		}
		evseID := st.EvseID
		if evseID == "" {
			evseID = evseKey
		}

		row := &model.AvailabilityRow{
			LocationID: locationID,
			Revision:   revision,
			EvseID:     evseID,
			Status:     st.Status,
			Timestamp:  st.Timestamp,
		}
		err := healer.Write(ctx, tx, row, p.healEvse(locationID, revision, evseID, evseKey, rec))
		if err := res.count(err); err != nil {
			return err
		}
		if err != nil {
			p.rejected("availability row failed", err,
				zap.String("location_id", locationID),
				zap.Int64("revision", revision),
				zap.String("evse_id", evseID),
			)
		}
	}

	return p.aggregate(ctx, tx, locationID, rec, res)
}

// healEvse returns a heal function writing the Evse rows of evseID, one per
// connector in connector-key order. Without connector metadata a bare row is
// written so the observation is kept. The evseIds key has no connector column,
// so every connector after the first is rejected as a duplicate; those
// rejections do not fail the heal.
func (p *Pipeline) healEvse(locationID string, revision int64, evseID, evseKey string, rec *model.LocationRecord) sqlite.HealFunc {
	return func(ctx context.Context, tx store.DBTX) error {
		base := model.EvseRow{
			LocationID:       locationID,
			Revision:         revision,
			EvseID:           evseID,
			IsRoamingPartner: rec.IsRoamingPartner,
			IsRoamingAllowed: rec.RoamingAllowed(),
			Visibility:       rec.Visibility,
		}

		evse := rec.Evses[evseKey]
		if evse == nil {
			evse = rec.Evses[evseID]
		}
		if evse == nil || len(evse.Connectors) == 0 {
			p.logger.Debug("no connector metadata, writing bare evse",
				zap.String("location_id", locationID),
				zap.String("evse_id", evseID),
			)
			return p.writer.Write(ctx, tx, &base)
		}

		base.VendorName = evse.VendorName
		var firstErr error
		for _, ck := range sortedKeys(evse.Connectors) {
			c := evse.Connectors[ck]
			if c == nil {
				continue
			}
			row := base
			row.EvseConnectorID = c.EvseConnectorID
			row.PlugType = c.PlugType
			row.PowerType = c.PowerType
			row.MaxPowerKw = c.MaxPowerKw
			row.ConnectorID = c.ConnectorID
			row.Speed = c.Speed
			err := p.writer.Write(ctx, tx, &row)
			switch {
			case err == nil:
			case store.IsUnique(err):
				p.logger.Debug("evse row already present",
					zap.String("location_id", locationID),
					zap.String("evse_id", evseID),
					zap.String("connector", ck),
				)
			case firstErr == nil:
				firstErr = err
			}
		}
		return firstErr
	}
}

// aggregate writes one availabilityAggregated row per latest connector group of
// the location. An EVSE counts as available for a group when its status is
// Available and one of its connectors has the group's plug type and speed.
func (p *Pipeline) aggregate(ctx context.Context, tx store.DBTX, locationID string, rec *model.LocationRecord, res *Result) error {
	groups, err := p.resolver.ConnectorGroupsFor(ctx, tx, locationID)
	if err != nil {
		return err
	}
	createdAt := p.cfg.Now().Unix()

	for _, g := range groups {
		var available int64
		for evseKey, st := range rec.Availability.Evses {
			if st == nil || st.Status == nil || *st.Status != StatusAvailable {
				continue
			}
			if evseMatches(rec.Evses[evseKey], g) {
				available++
			}
		}
		var total int64
		if g.Count != nil {
			total = *g.Count
		}

		row := &model.AvailabilityAggregateRow{
			LocationID:     g.LocationID,
			Revision:       g.Revision,
			ConnectorGroup: g.ConnectorGroup,
			AvailableCount: available,
			TotalCount:     total,
			CreatedAt:      createdAt,
		}
		if err := p.writer.Write(ctx, tx, row); err != nil {
			if !store.IsViolation(err) {
				return err
			}
			res.AggregateFailed++
			p.logger.Warn("availability aggregate rejected",
				zap.String("location_id", locationID),
				zap.Int64("connector_group", g.ConnectorGroup),
				zap.Error(err),
			)
			continue
		}
		res.Aggregated++
	}
	return nil
}

func evseMatches(evse *model.Evse, g *model.ConnectorGroupRow) bool {
	if evse == nil {
		return false
	}
	for _, c := range evse.Connectors {
		if c != nil && equalPtr(c.PlugType, g.PlugType) && equalPtr(c.Speed, g.Speed) {
			return true
		}
	}
	return false
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
