package ingest

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/store"
)

// RunLocations writes one Location row and its ConnectorGroup rows per record.
// Records are keyed by locationId; the key stands in for a missing locationId.
func (p *Pipeline) RunLocations(ctx context.Context, records map[string]*model.LocationRecord) (*Result, error) {
	start := time.Now()
	res := newResult("locations")

	err := each(ctx, p, records, func(key string, rec *model.LocationRecord) error {
		return p.inTx(ctx, func(tx *sql.Tx) error {
			return p.WriteLocation(ctx, tx, key, rec, res)
		})
	})
	p.finish(res, start)
	if err != nil {
		return res, err
	}

	if res.FallbackPlugTypes > 0 {
		p.logger.Warn("connectorCounts missing, used plugTypes instead",
			zap.Int("locations", res.FallbackPlugTypes),
			zap.String("run_id", res.RunID),
		)
	}
	return res, nil
}

// WriteLocation writes one location record within tx and updates res. The
// ConnectorGroup index is the bucket's position in connectorCounts (or
// plugTypes when connectorCounts is absent).
func (p *Pipeline) WriteLocation(ctx context.Context, tx store.DBTX, key string, rec *model.LocationRecord, res *Result) error {
	res.Records++
	if rec == nil {
		p.logger.Warn("empty location record", zap.String("key", key))
		res.Skipped++
		return nil
	}

	locationID := rec.LocationID
	if locationID == "" {
		locationID = key
	}
	if rec.Revision == nil {
		p.logger.Warn("location record without revision",
			zap.String("location_id", locationID),
		)
		res.Skipped++
		return nil
	}
	revision := *rec.Revision

	err := p.writer.Write(ctx, tx, model.NewLocationRow(locationID, revision, rec))
	if err := res.count(err); err != nil {
		return err
	}
	if err != nil {
		p.rejected("location row rejected", err,
			zap.String("location_id", locationID),
			zap.Int64("revision", revision),
		)
	}

	buckets, fallback := rec.ConnectorBuckets()
	if fallback {
		res.FallbackPlugTypes++
		p.logger.Debug("using plugTypes for connector groups",
			zap.String("location_id", locationID),
		)
	}

	for i, b := range buckets {
		row := &model.ConnectorGroupRow{
			LocationID:     locationID,
			Revision:       revision,
			ConnectorGroup: int64(i),
			PlugType:       b.PlugType,
			Speed:          b.Speed,
			Count:          b.Count,
		}
		err := p.writer.Write(ctx, tx, row)
		if err := res.count(err); err != nil {
			return err
		}
		if err != nil {
			p.rejected("connector group rejected", err,
				zap.String("location_id", locationID),
				zap.Int64("revision", revision),
				zap.Int("connector_group", i),
			)
		}
	}
	return nil
}
