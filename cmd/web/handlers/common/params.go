package common

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/internal/recording"
)

// RequireIDParam extracts a positive integer route parameter or returns a 400 error.
func RequireIDParam(c echo.Context, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return id, nil
}

// OptionalBucket reads a YYYY-MM-DD query parameter, falling back to def
// when it is absent.
func OptionalBucket(c echo.Context, param, def string) (string, error) {
	v := c.QueryParam(param)
	if v == "" {
		return def, nil
	}
	if _, err := time.Parse(recording.BucketLayout, v); err != nil {
		return "", ErrBadRequest("invalid " + param)
	}
	return v, nil
}

// OptionalInt reads a non-negative integer query parameter.
func OptionalInt(c echo.Context, param string, def int64) (int64, error) {
	v := c.QueryParam(param)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrBadRequest("invalid " + param)
	}
	return n, nil
}
