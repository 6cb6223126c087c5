package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"annotation-backend/internal/engine"
)

type staticEngine engine.Status

func (s staticEngine) Status() engine.Status { return engine.Status(s) }

func TestStatusWithoutDatabase(t *testing.T) {
	svc := NewService(staticEngine{Initialized: true, Constructions: 1}, nil)
	report := svc.Status(context.Background())
	if !report.OK || !report.Engine.Initialized || report.Database != "" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestStatusDatabasePing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	svc := NewService(staticEngine{}, db)
	if report := svc.Status(context.Background()); !report.OK || report.Database != "ok" {
		t.Fatalf("unexpected healthy report %+v", report)
	}
	if report := svc.Status(context.Background()); report.OK || report.Database != "unreachable" {
		t.Fatalf("unexpected unhealthy report %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
