// Package wire hosts the RPC surface over HTTP: one route per
// event-processor method (writer mutations) and one per query-processor
// method (reader/writer queries), with a JWT-gated protected group and
// failures rendered through package status instead of ad-hoc JSON error
// maps. It also exposes /healthz, /readyz, and /metrics, the operational
// surface any hosted writer or reader needs.
package wire

import (
	"context"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/evalgo/accessctl/model"
	"github.com/evalgo/accessctl/status"
	"github.com/evalgo/accessctl/tripswitch"
	"github.com/evalgo/accessctl/validate"
)

// EventProcessor is the subset of the writer's mutation surface the wire
// layer dispatches to; validate.Validator satisfies it directly.
type EventProcessor interface {
	AddUser(user string) validate.Result
	RemoveUser(user string) validate.Result
	AddGroup(group string) validate.Result
	RemoveGroup(group string) validate.Result
	AddUserToGroup(user, group string) validate.Result
	RemoveUserFromGroup(user, group string) validate.Result
	AddGroupToGroup(group, parent string) validate.Result
	RemoveGroupFromGroup(group, parent string) validate.Result
	AddUserComponentAccess(user string, access model.ComponentAccess) validate.Result
	RemoveUserComponentAccess(user string, access model.ComponentAccess) validate.Result
	AddGroupComponentAccess(group string, access model.ComponentAccess) validate.Result
	RemoveGroupComponentAccess(group string, access model.ComponentAccess) validate.Result
	AddEntityType(entityType string) validate.Result
	RemoveEntityType(entityType string) validate.Result
	AddEntity(entityType, entity string) validate.Result
	RemoveEntity(entityType, entity string) validate.Result
	AddUserEntityAccess(user, entityType, entity string) validate.Result
	RemoveUserEntityAccess(user, entityType, entity string) validate.Result
	AddGroupEntityAccess(group, entityType, entity string) validate.Result
	RemoveGroupEntityAccess(group, entityType, entity string) validate.Result
}

// Recorder persists a successful validate.Result as durable events after the
// EventProcessor call returns; a nil Recorder skips that step. cmd/accessd
// passes nil, because its EventProcessor records each mutation into the
// event buffer itself (eventbuf.Buffer.Record needs the action/family/payload
// of the primary mutation, which wire does not know generically).
type Recorder func(result validate.Result) error

// QueryModel is the subset of model.AccessModel's read surface the wire
// layer serves; both the writer's live model and a reader's replica
// satisfy it.
type QueryModel interface {
	HasAccessToComponent(user string, access model.ComponentAccess) (bool, error)
	AccessibleComponents(user string) ([]model.ComponentAccess, error)
	AccessibleEntities(user, entityType string) ([]string, error)
}

// QuerySource supplies the model to query and, for a reader, must be given
// the chance to surface a stashed refresh error first via
// NotifyQueryMethodCalled. The writer's own implementation is a no-op
// NotifyQueryMethodCalled returning nil.
type QuerySource interface {
	NotifyQueryMethodCalled() error
	Model() QueryModel
}

// Server hosts the event-processor and query-processor RPC surface plus the
// operational endpoints.
type Server struct {
	echo *echo.Echo

	trip      *tripswitch.Switch
	tripOn    func(error) bool
	converter *status.Converter
	log       *logrus.Entry
}

// Config configures the JWT and operational surface of a Server.
type Config struct {
	JWTSecret      string
	MetricsEnabled bool
	// TripOn, when set, is consulted for every error a handler surfaces;
	// a match actuates the trip switch (auto-trip). The matching request
	// still receives its normal error response — only subsequent requests
	// observe the tripped switch.
	TripOn func(error) bool
}

// New builds an echo server with the event/query processor routes mounted
// under a JWT-protected /v1/api group.
func New(cfg Config, events EventProcessor, record Recorder, queries QuerySource, trip *tripswitch.Switch, converter *status.Converter, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{echo: echo.New(), trip: trip, tripOn: cfg.TripOn, converter: converter, log: log}

	e := s.echo
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(s.tripSwitchMiddleware)

	e.GET("/healthz", s.handleHealthz)
	e.GET("/readyz", s.handleReadyz)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("/v1/api")
	if cfg.JWTSecret != "" {
		api.Use(echojwt.WithConfig(echojwt.Config{
			SigningKey:  []byte(cfg.JWTSecret),
			TokenLookup: "header:Authorization:Bearer ",
		}))
	}

	s.mountEventRoutes(api, events, record)
	s.mountQueryRoutes(api, queries)

	return s
}

// Start runs the HTTP server on addr, blocking until it stops or errors.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within the given timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// tripSwitchMiddleware fails a request before it reaches a handler once the
// trip switch has actuated, rendered through the status converter like any
// other error. /healthz and /readyz are exempt so they can report the
// tripped state themselves.
func (s *Server) tripSwitchMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p := c.Request().URL.Path; p == "/healthz" || p == "/readyz" {
			return next(c)
		}
		if s.trip != nil {
			if err := s.trip.Intercept(); err != nil {
				return s.renderError(c, err)
			}
		}
		return next(c)
	}
}

func (s *Server) handleHealthz(c echo.Context) error {
	if s.trip != nil && !s.trip.Healthy() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "tripped"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReadyz(c echo.Context) error {
	return s.handleHealthz(c)
}

// renderError converts err via the status converter and writes it as the
// HTTP response, using the wire-level code mapping in statusHTTPCode. It is
// also the auto-trip hook: an error matching Config.TripOn actuates the
// switch before the response is written.
func (s *Server) renderError(c echo.Context, err error) error {
	if s.trip != nil && s.tripOn != nil && s.tripOn(err) {
		s.trip.Trip()
	}
	st := s.converter.Convert(err)
	st.Method = c.Request().Method + " " + c.Path()
	return c.JSON(statusHTTPCode(st.Code), map[string]any{
		"code":       st.Code,
		"message":    st.Message,
		"attributes": st.Attributes,
		"method":     st.Method,
	})
}

func statusHTTPCode(code status.Code) int {
	switch code {
	case status.CodeNotFound:
		return http.StatusNotFound
	case status.CodeAlreadyExists:
		return http.StatusConflict
	case status.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case status.CodeInvalidArgument:
		return http.StatusBadRequest
	case status.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
