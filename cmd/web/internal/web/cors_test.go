package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestParseCommaSeparatedSet(t *testing.T) {
	t.Parallel()
	set := parseCommaSeparatedSet(" https://a.example/ , ,https://b.example")
	require.Equal(t, map[string]struct{}{
		"https://a.example": {},
		"https://b.example": {},
	}, set)
	require.Empty(t, parseCommaSeparatedSet(""))
}

func TestIsLocalOrPrivateRequestHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host      string
		forwarded string
		want      bool
	}{
		{host: "localhost:8080", want: true},
		{host: "127.0.0.1:8080", want: true},
		{host: "192.168.1.20", want: true},
		{host: "10.0.0.5:80", want: true},
		{host: "172.20.1.1", want: true},
		{host: "172.32.1.1", want: false},
		{host: "[fd00::1]:8080", want: true},
		{host: "scanner.example.com", want: false},
		{host: "10.0.0.5", forwarded: "scanner.example.com, 10.0.0.5", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.host+"|"+tt.forwarded, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			req.Host = tt.host
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Host", tt.forwarded)
			}
			c := echo.New().NewContext(req, httptest.NewRecorder())
			require.Equal(t, tt.want, isLocalOrPrivateRequestHost(c))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()
	s := &Webserver{allowedOrigins: parseCommaSeparatedSet("https://dash.example")}
	e := echo.New()
	h := s.corsMiddleware(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	run := func(method, host, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/stats", nil)
		req.Host = host
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(req, rec)))
		return rec
	}

	rec := run(http.MethodGet, "scanner.example.com", "https://dash.example")
	require.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = run(http.MethodGet, "scanner.example.com", "https://evil.example")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = run(http.MethodOptions, "scanner.example.com", "https://evil.example")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = run(http.MethodOptions, "192.168.1.4:8080", "http://192.168.1.9:3000")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://192.168.1.9:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = run(http.MethodGet, "scanner.example.com", "")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
