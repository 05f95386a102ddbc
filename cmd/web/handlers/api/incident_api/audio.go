package incident_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/api/fileserver"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/common"
	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/recording"
)

// HandleAudio streams the recording behind an incident. Only files inside
// the recordings root are served.
func HandleAudio(store Store, recordings *fileserver.Recordings) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireIDParam(c, "id")
		if err != nil {
			return err
		}
		inc, err := store.GetByID(c.Request().Context(), id)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				slog.Error("audio lookup failed", "id", id, "error", err)
			}
			return common.StoreError(err)
		}

		err = recordings.Serve(c, inc.FilePath)
		if errors.Is(err, recording.ErrOutsideRoot) {
			slog.Warn("refusing audio outside recordings root", "id", id, "path", inc.FilePath)
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
		var he *echo.HTTPError
		if err != nil && !errors.As(err, &he) {
			return common.ErrNotFound("recording not found")
		}
		return err
	}
}
