// Package query provides the read side of the store: latest-revision lookups
// used by the pipelines, the CLI and the HTTP API. All queries read the
// latest_* views so that stale revisions are never visible.
package query

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/Zerofisher/chargelog/pkg/model"
)

// Match identifies a connector group of the latest revision of a location.
type Match struct {
	Revision       int64 `json:"revision"`
	ConnectorGroup int64 `json:"connectorGroup"`
	Found          bool  `json:"found"`
}

// Unresolved is the (0, 0) sentinel returned when no connector group matches.
// Callers must not treat it as connector group 0.
var Unresolved = Match{}

// ────────────────────────────────────────────────────────────────────────────────
// Connector group filter expressions
// ────────────────────────────────────────────────────────────────────────────────

// GroupEnv is the environment filter expressions are evaluated against.
type GroupEnv struct {
	LocationID     string `expr:"locationId"`
	Revision       int64  `expr:"revision"`
	ConnectorGroup int64  `expr:"connectorGroup"`
	PlugType       string `expr:"plugType"`
	Speed          string `expr:"speed"`
	Count          int64  `expr:"count"`
}

// CompileFilter compiles a boolean expression over connector groups, e.g.
//
//	speed == "Rapid" && count >= 2
//	plugType in ["CCS", "CHAdeMO"]
//
// It returns a nil function for an empty expression.
func CompileFilter(filterStr string) (func(*model.ConnectorGroupRow) bool, error) {
	if filterStr == "" {
		return nil, nil
	}

	program, err := expr.Compile(filterStr, expr.Env(GroupEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter '%s': %w", filterStr, err)
	}

	return func(g *model.ConnectorGroupRow) bool {
		return evalFilter(program, groupToEnv(g))
	}, nil
}

func evalFilter(program *vm.Program, env GroupEnv) bool {
	result, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

func groupToEnv(g *model.ConnectorGroupRow) GroupEnv {
	env := GroupEnv{
		LocationID:     g.LocationID,
		Revision:       g.Revision,
		ConnectorGroup: g.ConnectorGroup,
	}
	if g.PlugType != nil {
		env.PlugType = *g.PlugType
	}
	if g.Speed != nil {
		env.Speed = *g.Speed
	}
	if g.Count != nil {
		env.Count = *g.Count
	}
	return env
}
