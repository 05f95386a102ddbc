package incident_api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/common"
	"thirdcoast.systems/scanwatch/internal/incident"
)

type typeCount struct {
	Label        string `json:"label"`
	Count        int64  `json:"count"`
	HighPriority bool   `json:"high_priority"`
}

type typesResponse struct {
	Bucket string      `json:"bucket"`
	Total  int64       `json:"total"`
	Types  []typeCount `json:"types"`
}

// HandleTypes returns the label breakdown of a bucket, most frequent first.
func HandleTypes(store Store, scopes ScopeSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		bucket, err := common.OptionalBucket(c, "bucket", scopes.Current().Bucket)
		if err != nil {
			return err
		}
		counts, err := store.LabelCounts(c.Request().Context(), bucket)
		if err != nil {
			slog.Error("label counts failed", "bucket", bucket, "error", err)
			return common.StoreError(err)
		}

		resp := typesResponse{Bucket: bucket, Types: make([]typeCount, 0, len(counts))}
		for _, lc := range counts {
			resp.Total += lc.Count
			resp.Types = append(resp.Types, typeCount{
				Label:        lc.Label,
				Count:        lc.Count,
				HighPriority: incident.IsHighPriority(lc.Label),
			})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// HandleTypeIncidents lists the incidents of a single label.
func HandleTypeIncidents(store Store, scopes ScopeSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := url.PathUnescape(c.Param("label"))
		if err != nil {
			return common.ErrBadRequest("invalid label")
		}
		label, err := parseLabel(raw)
		if err != nil {
			return err
		}
		bucket, err := common.OptionalBucket(c, "bucket", scopes.Current().Bucket)
		if err != nil {
			return err
		}
		return list(c, store, bucket, label)
	}
}

func parseLabel(raw string) (string, error) {
	label := incident.NormalizeLabel(raw)
	if label == incident.LabelUnknown && !strings.EqualFold(strings.TrimSpace(raw), incident.LabelUnknown) {
		return "", common.ErrBadRequest("unknown label")
	}
	return label, nil
}
