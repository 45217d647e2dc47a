package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Status is the payload of the health endpoint.
type Status struct {
	OK       bool   `json:"ok"`
	Analysis string `json:"analysis"`
	Database string `json:"database"`
	Store    string `json:"store"`
}

// Service encapsulates health-related checks.
type Service struct {
	db                 *sql.DB
	analysisConfigured bool
	storeType          string
}

// NewService constructs a new health service. db may be nil when run history
// is kept in memory.
func NewService(db *sql.DB, analysisConfigured bool, storeType string) *Service {
	return &Service{db: db, analysisConfigured: analysisConfigured, storeType: storeType}
}

// Status reports readiness. A placeholder analysis endpoint does not make the
// process unhealthy; it only means submissions will be refused.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{OK: true, Analysis: "configured", Database: "memory", Store: s.storeType}
	if !s.analysisConfigured {
		st.Analysis = "not_configured"
	}
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			st.OK = false
			st.Database = "unreachable"
		} else {
			st.Database = "ok"
		}
	}
	return st
}
