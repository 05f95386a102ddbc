package web

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

func parseCommaSeparatedSet(raw string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		set[strings.TrimSuffix(v, "/")] = struct{}{}
	}
	return set
}

// corsMiddleware lets dashboards hosted elsewhere read the API. Origins in
// the allow list are always accepted; any origin is accepted while the
// server is reached on a local or private address.
func (s *Webserver) corsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		origin := c.Request().Header.Get("Origin")
		allowedOrigin := ""
		if origin != "" {
			if _, ok := s.allowedOrigins[origin]; ok || isLocalOrPrivateRequestHost(c) {
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			c.Response().Header().Set("Vary", "Origin")
			c.Response().Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			c.Response().Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID")
			c.Response().Header().Set("Access-Control-Expose-Headers", "Content-Type")
		}

		if c.Request().Method == http.MethodOptions {
			if origin != "" && allowedOrigin == "" {
				return c.NoContent(http.StatusForbidden)
			}
			return c.NoContent(http.StatusNoContent)
		}

		err := next(c)

		// Error handling may have reset the headers.
		if allowedOrigin != "" && c.Response().Header().Get("Access-Control-Allow-Origin") == "" {
			c.Response().Header().Set("Vary", "Origin")
			c.Response().Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		}
		return err
	}
}

func isLocalOrPrivateRequestHost(c echo.Context) bool {
	hostHeader := strings.TrimSpace(c.Request().Header.Get("X-Forwarded-Host"))
	if hostHeader == "" {
		hostHeader = strings.TrimSpace(c.Request().Host)
	}
	if hostHeader == "" {
		return false
	}
	// If multiple forwarded hosts are provided, use the first.
	if idx := strings.Index(hostHeader, ","); idx >= 0 {
		hostHeader = strings.TrimSpace(hostHeader[:idx])
	}

	host := hostHeader
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSpace(host))

	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
