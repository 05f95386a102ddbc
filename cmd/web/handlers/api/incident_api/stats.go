package incident_api

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/common"
	"thirdcoast.systems/scanwatch/pkg/utils/format"
)

// RecentWindow is the span the "recent activity" figure covers.
const RecentWindow = 2 * time.Hour

type statsResponse struct {
	Bucket          string     `json:"bucket"`
	Total           int64      `json:"total"`
	Recent          int64      `json:"recent"`
	HighPriority    int64      `json:"high_priority"`
	HighPriorityPct float64    `json:"high_priority_pct"`
	UniqueLocations int64      `json:"unique_locations"`
	LastIncidentAt  *time.Time `json:"last_incident_at"`
	LastIncident    string     `json:"last_incident"`
}

func HandleStats(store Store, scopes ScopeSource, now func() time.Time) echo.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c echo.Context) error {
		bucket := scopes.Current().Bucket
		t := now()
		s, err := store.Stats(c.Request().Context(), bucket, t.Add(-RecentWindow))
		if err != nil {
			slog.Error("stats failed", "bucket", bucket, "error", err)
			return common.StoreError(err)
		}

		resp := statsResponse{
			Bucket:          bucket,
			Total:           s.Total,
			Recent:          s.Recent,
			HighPriority:    s.HighPriority,
			UniqueLocations: s.UniqueLocations,
			LastIncidentAt:  s.LastCreatedAt,
			LastIncident:    "never",
		}
		if s.Total > 0 {
			resp.HighPriorityPct = math.Round(float64(s.HighPriority)*1000/float64(s.Total)) / 10
		}
		if ago := format.Ago(s.LastCreatedAt, t); ago != "" {
			resp.LastIncident = ago
		}
		return c.JSON(http.StatusOK, resp)
	}
}
