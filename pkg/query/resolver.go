package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/store"
)

// Resolver answers latest-revision questions. It holds no handle: every method
// runs on the handle passed in, so it is safe to share across goroutines.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// MatchingConnectorGroup returns the revision and connector group of the latest
// revision of locationID whose plug type and speed match. When several groups
// match, the lowest group index wins. When none match, Unresolved is returned
// with a nil error and a warning is logged. A query error is logged and returned
// together with Unresolved.
func (r *Resolver) MatchingConnectorGroup(ctx context.Context, q store.DBTX, locationID, plugType, speed string) (Match, error) {
	var m Match
	err := q.QueryRowContext(ctx, `
		SELECT revision, connectorGroup
		FROM latest_connector_groups
		WHERE locationId = ? AND plugType = ? AND speed = ?
		ORDER BY connectorGroup
		LIMIT 1`, locationID, plugType, speed).Scan(&m.Revision, &m.ConnectorGroup)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		r.logger.Warn("no matching connector group",
			zap.String("location_id", locationID),
			zap.String("plug_type", plugType),
			zap.String("speed", speed),
		)
		return Unresolved, nil
	case err != nil:
		r.logger.Error("connector group lookup failed",
			zap.String("location_id", locationID),
			zap.Error(err),
		)
		return Unresolved, fmt.Errorf("match connector group: %w", err)
	}

	m.Found = true
	return m, nil
}

// LocationsBySpeed returns the distinct, sorted location ids whose latest
// revision has a connector group of the given speed.
func (r *Resolver) LocationsBySpeed(ctx context.Context, q store.DBTX, speed string) ([]string, error) {
	return r.locationIDs(ctx, q, `
		SELECT DISTINCT locationId
		FROM latest_connector_groups
		WHERE speed = ?
		ORDER BY locationId`, speed)
}

// AllLocations returns the distinct, sorted location ids of the latest revisions.
func (r *Resolver) AllLocations(ctx context.Context, q store.DBTX) ([]string, error) {
	return r.locationIDs(ctx, q, `
		SELECT DISTINCT locationId
		FROM latest_locations
		ORDER BY locationId`)
}

func (r *Resolver) locationIDs(ctx context.Context, q store.DBTX, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestConnectorGroups returns every connector group of the latest revisions,
// ordered by location and group index.
func (r *Resolver) LatestConnectorGroups(ctx context.Context, q store.DBTX) ([]*model.ConnectorGroupRow, error) {
	return r.connectorGroups(ctx, q, `
		SELECT locationId, revision, connectorGroup, plugType, speed, count
		FROM latest_connector_groups
		ORDER BY locationId, connectorGroup`)
}

// ConnectorGroupsFor returns the connector groups of the latest revision of one
// location.
func (r *Resolver) ConnectorGroupsFor(ctx context.Context, q store.DBTX, locationID string) ([]*model.ConnectorGroupRow, error) {
	return r.connectorGroups(ctx, q, `
		SELECT locationId, revision, connectorGroup, plugType, speed, count
		FROM latest_connector_groups
		WHERE locationId = ?
		ORDER BY connectorGroup`, locationID)
}

func (r *Resolver) connectorGroups(ctx context.Context, q store.DBTX, query string, args ...any) ([]*model.ConnectorGroupRow, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query connector groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.ConnectorGroupRow
	for rows.Next() {
		g, err := scanConnectorGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func scanConnectorGroup(rows *sql.Rows) (*model.ConnectorGroupRow, error) {
	var (
		g        model.ConnectorGroupRow
		plugType sql.NullString
		speed    sql.NullString
		count    sql.NullInt64
	)
	if err := rows.Scan(&g.LocationID, &g.Revision, &g.ConnectorGroup, &plugType, &speed, &count); err != nil {
		return nil, fmt.Errorf("scan connector group: %w", err)
	}
	if plugType.Valid {
		g.PlugType = &plugType.String
	}
	if speed.Valid {
		g.Speed = &speed.String
	}
	if count.Valid {
		g.Count = &count.Int64
	}
	return &g, nil
}
