package incident_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/common"
	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/feed"
)

func HandleGet(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireIDParam(c, "id")
		if err != nil {
			return err
		}
		inc, err := store.GetByID(c.Request().Context(), id)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				slog.Error("get incident failed", "id", id, "error", err)
			}
			return common.StoreError(err)
		}
		return c.JSON(http.StatusOK, feed.NewView(inc))
	}
}
