package feed_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/common"
)

// HandleChanges returns every row of a bucket above since: the same rows the
// stream would have pushed, for viewers that poll or reconnect.
func HandleChanges(resync Resyncer) echo.HandlerFunc {
	return func(c echo.Context) error {
		since, err := common.OptionalInt(c, "since", 0)
		if err != nil {
			return err
		}
		bucket, err := common.OptionalBucket(c, "bucket", "")
		if err != nil {
			return err
		}
		b, err := resync.Resync(c.Request().Context(), bucket, since)
		if err != nil {
			slog.Error("feed changes failed", "since", since, "bucket", bucket, "error", err)
			return common.ErrInternal("store unavailable")
		}
		return c.JSON(http.StatusOK, b)
	}
}
