package web

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/api/fileserver"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/api/incident_api"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/feed_api"
	"thirdcoast.systems/scanwatch/cmd/web/internal/feedhub"
	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/feed"
	"thirdcoast.systems/scanwatch/internal/metrics"
	"thirdcoast.systems/scanwatch/internal/rollover"
)

const streamPath = "/api/feed/stream"

type Webserver struct {
	*echo.Echo
	dbc            *db.DatabaseConnection
	scopes         incident_api.ScopeSource
	poller         *feed.Poller
	hub            *feedhub.Hub
	recordings     *fileserver.Recordings
	allowedOrigins map[string]struct{}
}

type Options struct {
	Store          *db.DatabaseConnection
	Scopes         *rollover.Scheduler
	Poller         *feed.Poller
	Hub            *feedhub.Hub
	RecordingsRoot string
	AllowedOrigins string
}

func NewWebserver(ctx context.Context, opts Options) (*Webserver, error) {
	_ = ctx
	e := echo.New()

	webserver := &Webserver{
		Echo:           e,
		dbc:            opts.Store,
		scopes:         opts.Scopes,
		poller:         opts.Poller,
		hub:            opts.Hub,
		recordings:     fileserver.NewRecordings(opts.RecordingsRoot),
		allowedOrigins: parseCommaSeparatedSet(opts.AllowedOrigins),
	}

	if len(webserver.allowedOrigins) == 0 {
		slog.Info("CORS_ALLOWED_ORIGINS not set; cross-origin API access will be allowed only on localhost/private IP")
	}

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}

	if err := webserver.registerRoutes(); err != nil {
		return nil, err
	}

	return webserver, nil
}

func isStream(c echo.Context) bool {
	return c.Path() == streamPath
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("2M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:   5,
		Skipper: isStream,
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case streamPath, "/healthz", "/metrics":
				return true
			default:
				return false
			}
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))
	return nil
}

func (s *Webserver) registerRoutes() error {
	apiGroup := s.Group("/api")
	apiGroup.Use(s.corsMiddleware)

	apiGroup.GET("/feed/stream", feed_api.HandleStream(s.hub, s.poller))
	apiGroup.GET("/feed/changes", feed_api.HandleChanges(s.poller))

	apiGroup.GET("/stats", incident_api.HandleStats(s.dbc, s.scopes, nil))
	apiGroup.GET("/latest", incident_api.HandleLatest(s.dbc, s.scopes))
	apiGroup.GET("/health", incident_api.HandleHealth(s.dbc, s.scopes))
	apiGroup.GET("/incidents", incident_api.HandleIndex(s.dbc, s.scopes))
	apiGroup.GET("/incidents/types", incident_api.HandleTypes(s.dbc, s.scopes))
	apiGroup.GET("/incidents/types/:label", incident_api.HandleTypeIncidents(s.dbc, s.scopes))
	apiGroup.GET("/incidents/:id", incident_api.HandleGet(s.dbc))
	apiGroup.GET("/incidents/:id/audio", incident_api.HandleAudio(s.dbc, s.recordings))

	// Health check
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "ok")
	})
	s.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return nil
}
