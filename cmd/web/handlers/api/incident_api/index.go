package incident_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/common"
	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/feed"
)

type listResponse struct {
	Bucket    string      `json:"bucket"`
	Label     string      `json:"label,omitempty"`
	Incidents []feed.View `json:"incidents"`
}

// HandleIndex lists a bucket's incidents newest first.
func HandleIndex(store Store, scopes ScopeSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		bucket, err := common.OptionalBucket(c, "bucket", scopes.Current().Bucket)
		if err != nil {
			return err
		}
		label := ""
		if raw := c.QueryParam("label"); raw != "" {
			if label, err = parseLabel(raw); err != nil {
				return err
			}
		}
		return list(c, store, bucket, label)
	}
}

func list(c echo.Context, store Store, bucket, label string) error {
	limit, err := common.OptionalInt(c, "limit", 100)
	if err != nil {
		return err
	}
	offset, err := common.OptionalInt(c, "offset", 0)
	if err != nil {
		return err
	}

	rows, err := store.List(c.Request().Context(), db.ListParams{
		Bucket: bucket,
		Label:  label,
		Limit:  int(limit),
		Offset: int(offset),
	})
	if err != nil {
		slog.Error("list incidents failed", "bucket", bucket, "label", label, "error", err)
		return common.StoreError(err)
	}
	return c.JSON(http.StatusOK, listResponse{Bucket: bucket, Label: label, Incidents: feed.Views(rows)})
}

type latestResponse struct {
	Bucket   string     `json:"bucket"`
	Incident *feed.View `json:"incident"`
}

// HandleLatest returns the newest incident of the current bucket, or a
// null incident when the day is still empty.
func HandleLatest(store Store, scopes ScopeSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		bucket := scopes.Current().Bucket
		rows, err := store.List(c.Request().Context(), db.ListParams{Bucket: bucket, Limit: 1})
		if err != nil {
			slog.Error("latest incident failed", "bucket", bucket, "error", err)
			return common.StoreError(err)
		}
		resp := latestResponse{Bucket: bucket}
		if len(rows) > 0 {
			v := feed.NewView(&rows[0])
			resp.Incident = &v
		}
		return c.JSON(http.StatusOK, resp)
	}
}
