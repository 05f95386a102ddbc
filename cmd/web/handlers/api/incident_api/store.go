// Package incident_api serves the dashboard's read-only incident endpoints.
package incident_api

import (
	"context"
	"time"

	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/incident"
	"thirdcoast.systems/scanwatch/internal/rollover"
)

type Store interface {
	GetByID(ctx context.Context, id int64) (*incident.Incident, error)
	List(ctx context.Context, p db.ListParams) ([]incident.Incident, error)
	LabelCounts(ctx context.Context, bucket string) ([]db.LabelCount, error)
	Stats(ctx context.Context, bucket string, since time.Time) (db.Stats, error)
	Ping(ctx context.Context) error
}

type ScopeSource interface {
	Current() *rollover.Scope
}
