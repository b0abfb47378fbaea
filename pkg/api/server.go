// Package api exposes the read side of the store over HTTP.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/query"
)

// Server serves latest-revision lookups.
type Server struct {
	db       *sql.DB
	resolver *query.Resolver
	logger   *zap.Logger
}

// NewServer creates a server reading from db.
func NewServer(db *sql.DB, resolver *query.Resolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = query.NewResolver(logger)
	}
	return &Server{db: db, resolver: resolver, logger: logger}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.Health)
	r.Get("/v1/locations", s.ListLocations)
	r.Get("/v1/locations/{locationId}/connector-groups", s.ListConnectorGroups)
	r.Get("/v1/locations/{locationId}/connector-group", s.ResolveConnectorGroup)
	r.Get("/v1/connector-groups", s.FilterConnectorGroups)
	return r
}

type connectorGroup struct {
	LocationID     string  `json:"locationId"`
	Revision       int64   `json:"revision"`
	ConnectorGroup int64   `json:"connectorGroup"`
	PlugType       *string `json:"plugType"`
	Speed          *string `json:"speed"`
	Count          *int64  `json:"count"`
}

func toConnectorGroups(rows []*model.ConnectorGroupRow) []connectorGroup {
	out := make([]connectorGroup, 0, len(rows))
	for _, g := range rows {
		out = append(out, connectorGroup{
			LocationID:     g.LocationID,
			Revision:       g.Revision,
			ConnectorGroup: g.ConnectorGroup,
			PlugType:       g.PlugType,
			Speed:          g.Speed,
			Count:          g.Count,
		})
	}
	return out
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "db unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListLocations returns location ids, optionally only those with a connector
// group of the given speed.
func (s *Server) ListLocations(w http.ResponseWriter, r *http.Request) {
	var (
		ids []string
		err error
	)
	if speed := r.URL.Query().Get("speed"); speed != "" {
		ids, err = s.resolver.LocationsBySpeed(r.Context(), s.db, speed)
	} else {
		ids, err = s.resolver.AllLocations(r.Context(), s.db)
	}
	if err != nil {
		s.dbError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ids})
}

func (s *Server) ListConnectorGroups(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "locationId")
	groups, err := s.resolver.ConnectorGroupsFor(r.Context(), s.db, id)
	if err != nil {
		s.dbError(w, r, err)
		return
	}
	if len(groups) == 0 {
		http.Error(w, "location not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toConnectorGroups(groups)})
}

// ResolveConnectorGroup answers which connector group of the latest revision
// carries plugType and speed. An unresolved lookup is a 200 with found=false.
func (s *Server) ResolveConnectorGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "locationId")
	plugType := r.URL.Query().Get("plugType")
	speed := r.URL.Query().Get("speed")
	if plugType == "" || speed == "" {
		http.Error(w, "plugType and speed are required", http.StatusBadRequest)
		return
	}

	match, err := s.resolver.MatchingConnectorGroup(r.Context(), s.db, id, plugType, speed)
	if err != nil {
		s.dbError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// FilterConnectorGroups returns latest connector groups matching ?where=.
func (s *Server) FilterConnectorGroups(w http.ResponseWriter, r *http.Request) {
	match, err := query.CompileFilter(r.URL.Query().Get("where"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	groups, err := s.resolver.LatestConnectorGroups(r.Context(), s.db)
	if err != nil {
		s.dbError(w, r, err)
		return
	}
	if match != nil {
		kept := groups[:0]
		for _, g := range groups {
			if match(g) {
				kept = append(kept, g)
			}
		}
		groups = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toConnectorGroups(groups)})
}

func (s *Server) dbError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("query failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	http.Error(w, "db error", http.StatusInternalServerError)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
