// Package ingest turns external location, availability and price records into
// store rows. Each record is written in its own transaction; rejected rows are
// counted, never returned. Only store-level failures abort a run.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/dedup"
	"github.com/Zerofisher/chargelog/pkg/query"
	"github.com/Zerofisher/chargelog/pkg/store"
	"github.com/Zerofisher/chargelog/pkg/store/sqlite"
)

// Config holds configuration for the ingest pipelines.
type Config struct {
	// DB is the database transactions are opened on. Required.
	DB *sql.DB

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Now stamps availability aggregates. Defaults to time.Now.
	Now func() time.Time

	// ProgressCallback is called after every record.
	ProgressCallback func(processed, total int, elapsed time.Duration)
}

// Result holds the counters of one pipeline run.
type Result struct {
	RunID    string
	Pipeline string

	// Records is the number of external records processed.
	Records int

	// Total rows attempted. Total == Success + Failed + Duplicates.
	Total      int
	Success    int
	Failed     int
	Duplicates int

	// Healed rows succeeded after synthesizing their parent rows.
	Healed int

	// Plugs is the number of EVSEs known to the availability payloads.
	Plugs int

	// FallbackPlugTypes counts locations whose plugTypes field stood in for a
	// missing connectorCounts.
	FallbackPlugTypes int

	// Skipped counts records or entries ignored for lack of data.
	Skipped int

	Aggregated      int
	AggregateFailed int

	// PriceGroupsCreated counts groups created by this run.
	PriceGroupsCreated int

	Duration time.Duration
}

func (r *Result) fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("pipeline", r.Pipeline),
		zap.Int("records", r.Records),
		zap.Int("success", r.Success),
		zap.Int("total", r.Total),
		zap.Int("failed", r.Failed),
		zap.Int("duplicates", r.Duplicates),
		zap.Int("healed", r.Healed),
		zap.Int("skipped", r.Skipped),
		zap.Duration("duration", r.Duration),
	}
}

// Pipeline runs the location, availability and price ingestion.
type Pipeline struct {
	cfg      Config
	db       *sql.DB
	logger   *zap.Logger
	writer   *sqlite.RowWriter
	resolver *query.Resolver
	index    *dedup.Index
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("ingest: DB is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger.Named("ingest")
	writer := sqlite.NewRowWriter(logger.Named("writer"))
	resolver := query.NewResolver(logger.Named("resolver"))

	return &Pipeline{
		cfg:      cfg,
		db:       cfg.DB,
		logger:   logger,
		writer:   writer,
		resolver: resolver,
		index:    dedup.NewIndex(writer, resolver, logger.Named("dedup")),
	}, nil
}

// Resolver returns the resolver the pipeline uses.
func (p *Pipeline) Resolver() *query.Resolver {
	return p.resolver
}

func newResult(pipeline string) *Result {
	return &Result{
		RunID:    uuid.NewString(),
		Pipeline: pipeline,
	}
}

// count records the outcome of one row write. It returns err only when the
// error is not a constraint violation.
func (r *Result) count(err error) error {
	r.Total++
	switch {
	case err == nil:
		r.Success++
	case store.IsUnique(err):
		r.Duplicates++
	case store.IsViolation(err):
		r.Failed++
	default:
		r.Failed++
		return err
	}
	return nil
}

// inTx runs fn in a transaction and commits it. The transaction is rolled back
// if fn fails.
func (p *Pipeline) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// each iterates records in key order so runs are deterministic.
func each[V any](
	ctx context.Context,
	p *Pipeline,
	records map[string]V,
	fn func(key string, rec V) error,
) error {
	keys := sortedKeys(records)
	start := time.Now()
	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, records[k]); err != nil {
			return err
		}
		if p.cfg.ProgressCallback != nil {
			p.cfg.ProgressCallback(i+1, len(keys), time.Since(start))
		}
	}
	return nil
}

func (p *Pipeline) finish(res *Result, start time.Time) {
	res.Duration = time.Since(start)
	p.logger.Info("ingestion finished", res.fields()...)
}

// rejected logs a row the store refused. Duplicates are expected on re-runs.
func (p *Pipeline) rejected(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if store.IsUnique(err) {
		p.logger.Debug(msg, fields...)
		return
	}
	p.logger.Warn(msg, fields...)
}
