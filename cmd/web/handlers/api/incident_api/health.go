package incident_api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Bucket   string `json:"bucket"`
}

func HandleHealth(store Store, scopes ScopeSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Database: "ok", Bucket: scopes.Current().Bucket}
		if err := store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
