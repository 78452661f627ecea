// Package server exposes the agent over HTTP: a run endpoint that streams
// agent events as server-sent events, code generation from a submitted
// trace, run cancellation, and persisted-run retrieval.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tracewright/tracewright/pkg/agent"
	"github.com/tracewright/tracewright/pkg/config"
	"github.com/tracewright/tracewright/pkg/llm"
	"github.com/tracewright/tracewright/pkg/logging"
	"github.com/tracewright/tracewright/pkg/store"
	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

// Version reported by the health endpoint.
const Version = "0.1.0"

// Store is the persistence surface the server needs.
type Store interface {
	CreateRun(ctx context.Context, run *store.Run) error
	FinishRun(ctx context.Context, runID, status, errMsg, code, filename string) error
	GetRun(ctx context.Context, runID string) (*store.Run, error)
	SaveTrace(ctx context.Context, runID string, frozen *trace.ExecutionTrace) error
	SaveEvent(ctx context.Context, runID string, seq int, event *types.AgentEvent) error
	GetEvents(ctx context.Context, runID string) ([]*types.AgentEvent, error)
}

// runStarter launches one agent run and returns its event stream plus a
// channel that delivers the result after the stream closes. Tests substitute
// a fake; the default launches a real browser session.
type runStarter func(ctx context.Context, cfg agent.RunConfig, provider llm.Provider, guard func(string) error) (<-chan *types.AgentEvent, <-chan *agent.Result, error)

// Server wires the HTTP API to the agent, the store, and the allowlist.
type Server struct {
	echo     *echo.Echo
	settings config.Settings
	store    Store
	allow    *config.Allowlist
	log      *logging.Logger
	start    runStarter

	metrics runMetrics

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates a server from loaded settings and an opened store.
func New(settings config.Settings, st Store) (*Server, error) {
	allow, err := config.NewAllowlist(settings.AllowedHosts)
	if err != nil {
		return nil, err
	}

	log, _ := logging.NewLogger("server")

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:     e,
		settings: settings,
		store:    st,
		allow:    allow,
		log:      log,
		active:   make(map[string]context.CancelFunc),
	}
	s.start = s.startBrowserRun
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")
	if limit := s.settings.Server.RateLimitPerMinute; limit > 0 {
		api.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(limit) / 60),
				Burst:     limit,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: clientIdentity,
		}))
	}
	api.POST("/agent", s.RunAgent)
	api.POST("/generate-code", s.GenerateCode)
	api.POST("/runs/:id/cancel", s.CancelRun)
	api.GET("/runs/:id", s.GetRun)
	api.GET("/health", s.Health)
	api.GET("/metrics", s.Metrics)
}

// clientIdentity keys the rate limiter: API key first, then the forwarded
// address, then the direct peer.
func clientIdentity(c echo.Context) (string, error) {
	if key := c.Request().Header.Get("X-API-Key"); key != "" {
		return key, nil
	}
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd, nil
	}
	return c.RealIP(), nil
}

// Start binds and serves until Shutdown or a listen error.
func (s *Server) Start() error {
	s.log.Infof("listening on %s", s.settings.Addr())
	return s.echo.Start(s.settings.Addr())
}

// Shutdown cancels all in-flight runs and stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.active {
		cancel()
	}
	s.mu.Unlock()
	return s.echo.Shutdown(ctx)
}

func (s *Server) register(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[runID] = cancel
}

func (s *Server) unregister(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, runID)
}

// cancelActive cancels a live run by ID, reporting whether it was found.
func (s *Server) cancelActive(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.active[runID]
	if ok {
		cancel()
	}
	return ok
}
