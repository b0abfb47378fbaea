package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/ingest"
	"github.com/Zerofisher/chargelog/pkg/model"
)

// Record kinds accepted by IngestFile.
const (
	KindLocations    = "locations"
	KindAvailability = "availability"
	KindPrices       = "prices"
)

// IngestFile ingests a JSON document of the given kind from path.
func (a *App) IngestFile(ctx context.Context, kind, path string) (*ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.IngestBytes(ctx, kind, data)
}

// IngestBytes ingests a JSON document of the given kind.
func (a *App) IngestBytes(ctx context.Context, kind string, data []byte) (*ingest.Result, error) {
	switch kind {
	case KindLocations:
		recs, bad, err := model.DecodeLocations(data)
		if err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
		a.warnMalformed(kind, bad)
		return a.pipeline.RunLocations(ctx, recs)

	case KindAvailability:
		recs, bad, err := model.DecodeAvailability(data)
		if err != nil {
			return nil, fmt.Errorf("decode availability: %w", err)
		}
		a.warnMalformed(kind, bad)
		return a.pipeline.RunAvailability(ctx, recs)

	case KindPrices:
		recs, bad, err := model.DecodePrices(data)
		if err != nil {
			return nil, fmt.Errorf("decode prices: %w", err)
		}
		a.warnMalformed(kind, bad)
		return a.pipeline.RunPrices(ctx, recs)
	}
	return nil, fmt.Errorf("unknown record kind %q (use %s, %s or %s)",
		kind, KindLocations, KindAvailability, KindPrices)
}

// warnMalformed logs the entries that failed to decode. They reach the pipeline
// as empty records and are counted as skipped there.
func (a *App) warnMalformed(kind string, bad model.Malformed) {
	for _, key := range bad.Keys() {
		a.logger.Warn("malformed record",
			zap.String("kind", kind),
			zap.String("key", key),
			zap.Error(bad[key]),
		)
	}
}
