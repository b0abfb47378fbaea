// Package report summarizes the contents of a chargelog database.
package report

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/store"
)

// Data holds all data for report generation.
type Data struct {
	// Meta
	GeneratedAt time.Time
	DBPath      string
	DBSize      int64

	// Row counts per table, in schema order.
	Tables []*TableCount

	// Locations
	Locations        int
	MultiRevision    int
	LatestRevisionAt time.Time

	// Connector groups of the latest revisions, per speed.
	Speeds []*SpeedSummary

	// Most recent aggregate of every latest connector group, per speed.
	Availability []*AvailabilitySummary

	// Prices
	PriceGroups      int
	UnresolvedGroups int
	MixedGroups      int
	PriceTimeSlots   int
	CurrentTimeSlots int
}

// TableCount is the row count of one table.
type TableCount struct {
	Table string
	Rows  int64
}

// SpeedSummary describes the latest connector groups of one speed.
type SpeedSummary struct {
	Speed      string
	Locations  int
	Groups     int
	Connectors int64
}

// AvailabilitySummary is the latest availability of one speed.
type AvailabilitySummary struct {
	Speed     string
	Available int64
	Total     int64
	AsOf      time.Time
}

// Ratio returns the available share in percent.
func (a *AvailabilitySummary) Ratio() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Available) / float64(a.Total) * 100
}

var reportTables = []string{
	model.TableLocations,
	model.TableEvseIDs,
	model.TableConnectorGroups,
	model.TableAvailabilityLog,
	model.TableAvailabilityAggregated,
	model.TablePriceGroups,
	model.TablePriceTimeSlots,
}

// Generate creates a report from the database at path, read through q.
func Generate(ctx context.Context, q store.DBTX, path string) (*Data, error) {
	report := &Data{
		GeneratedAt: time.Now(),
		DBPath:      path,
	}
	if fi, err := os.Stat(path); err == nil {
		report.DBSize = fi.Size()
	}

	for _, table := range reportTables {
		var n int64
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		report.Tables = append(report.Tables, &TableCount{Table: table, Rows: n})
	}

	var latestTS *int64
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM latest_locations),
			(SELECT COUNT(*) FROM (
				SELECT locationId FROM locations GROUP BY locationId HAVING COUNT(*) > 1)),
			(SELECT MAX(ts_seconds) FROM latest_locations)`).
		Scan(&report.Locations, &report.MultiRevision, &latestTS)
	if err != nil {
		return nil, fmt.Errorf("location overview: %w", err)
	}
	if latestTS != nil {
		report.LatestRevisionAt = time.Unix(*latestTS, 0).UTC()
	}

	if report.Speeds, err = speeds(ctx, q); err != nil {
		return nil, fmt.Errorf("speed summary: %w", err)
	}
	if report.Availability, err = availability(ctx, q); err != nil {
		return nil, fmt.Errorf("availability summary: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN revision = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN mixedPlugTypes = 1 OR mixedSpeeds = 1 THEN 1 ELSE 0 END), 0)
		FROM priceGroups`).
		Scan(&report.PriceGroups, &report.UnresolvedGroups, &report.MixedGroups)
	if err != nil {
		return nil, fmt.Errorf("price groups: %w", err)
	}
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(isCurrent), 0) FROM priceTimeSlots`).
		Scan(&report.PriceTimeSlots, &report.CurrentTimeSlots)
	if err != nil {
		return nil, fmt.Errorf("price time slots: %w", err)
	}

	return report, nil
}

func speeds(ctx context.Context, q store.DBTX) ([]*SpeedSummary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(speed, ''), COUNT(DISTINCT locationId), COUNT(*), COALESCE(SUM(count), 0)
		FROM latest_connector_groups
		GROUP BY speed
		ORDER BY speed`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SpeedSummary
	for rows.Next() {
		s := &SpeedSummary{}
		if err := rows.Scan(&s.Speed, &s.Locations, &s.Groups, &s.Connectors); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func availability(ctx context.Context, q store.DBTX) ([]*AvailabilitySummary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(cg.speed, ''),
		       COALESCE(SUM(a.availableCount), 0),
		       COALESCE(SUM(a.totalCount), 0),
		       MAX(a.createdAt)
		FROM availabilityAggregated a
		JOIN latest_connector_groups cg
		  ON a.locationId = cg.locationId
		 AND a.revision = cg.revision
		 AND a.connectorGroup = cg.connectorGroup
		WHERE a.createdAt = (
			SELECT MAX(b.createdAt) FROM availabilityAggregated b
			WHERE b.locationId = a.locationId
			  AND b.revision = a.revision
			  AND b.connectorGroup = a.connectorGroup)
		GROUP BY cg.speed
		ORDER BY cg.speed`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AvailabilitySummary
	for rows.Next() {
		a := &AvailabilitySummary{}
		var asOf int64
		if err := rows.Scan(&a.Speed, &a.Available, &a.Total, &asOf); err != nil {
			return nil, err
		}
		a.AsOf = time.Unix(asOf, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
