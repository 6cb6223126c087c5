// Package health reports liveness plus the state of the shared engine and
// the run database.
package health

import (
	"context"
	"database/sql"
	"time"

	"annotation-backend/internal/engine"
)

const pingTimeout = 2 * time.Second

// EngineStatus is implemented by engine.Manager.
type EngineStatus interface {
	Status() engine.Status
}

// Report is the health payload.
type Report struct {
	OK       bool          `json:"ok"`
	Engine   engine.Status `json:"engine"`
	Database string        `json:"database,omitempty"`
}

// Service encapsulates health-related checks.
type Service struct {
	engine EngineStatus
	db     *sql.DB
}

// NewService constructs a new health service. db may be nil.
func NewService(eng EngineStatus, db *sql.DB) *Service {
	return &Service{engine: eng, db: db}
}

// Status reports process health. An engine that has not been built yet is
// healthy; it is constructed on first use.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true}
	if s.engine != nil {
		report.Engine = s.engine.Status()
	}
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			report.OK = false
			report.Database = "unreachable"
		} else {
			report.Database = "ok"
		}
	}
	return report
}
