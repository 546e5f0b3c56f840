// Package dashboard serves a read view of the latest scan results.
package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/orchestrator"
)

// Store is a mutex-guarded snapshot of the latest scan's reports.
type Store struct {
	mu        sync.RWMutex
	reports   []orchestrator.Report
	scannedAt time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store { return &Store{} }

// Replace swaps in the reports of a fresh scan.
func (s *Store) Replace(reports []orchestrator.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = reports
	s.scannedAt = time.Now()
}

// Snapshot returns the current reports and when they were produced.
func (s *Store) Snapshot() ([]orchestrator.Report, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orchestrator.Report, len(s.reports))
	copy(out, s.reports)
	return out, s.scannedAt
}

// Find returns the report with the given trace ID.
func (s *Store) Find(traceID string) (orchestrator.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if r.TraceID == traceID {
			return r, true
		}
	}
	return orchestrator.Report{}, false
}

// ScanFunc runs a full scan-and-process cycle and returns its reports.
type ScanFunc func(ctx context.Context) ([]orchestrator.Report, error)

// Server exposes the dashboard HTTP API.
type Server struct {
	echo   *echo.Echo
	store  *Store
	scan   ScanFunc
	logger *zap.Logger
	addr   string
}

// NewServer creates the dashboard server. scan may be nil, disabling the
// scan-trigger endpoint.
func NewServer(store *Store, scan ScanFunc, addr string, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		store:  store,
		scan:   scan,
		logger: logger.Named("dashboard"),
		addr:   addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/failures", s.handleFailures)
	v1.GET("/reports/:trace", s.handleReport)
	v1.POST("/scan", s.handleScan)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// FailuresResponse is the response body for GET /api/v1/failures.
type FailuresResponse struct {
	ScannedAt time.Time             `json:"scanned_at"`
	Count     int                   `json:"count"`
	Reports   []orchestrator.Report `json:"reports"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleFailures(c echo.Context) error {
	reports, scannedAt := s.store.Snapshot()
	return c.JSON(http.StatusOK, FailuresResponse{
		ScannedAt: scannedAt,
		Count:     len(reports),
		Reports:   reports,
	})
}

func (s *Server) handleReport(c echo.Context) error {
	report, ok := s.store.Find(c.Param("trace"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no report with that trace id")
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleScan(c echo.Context) error {
	if s.scan == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scanning not available in this mode")
	}
	reports, err := s.scan(c.Request().Context())
	if err != nil {
		s.logger.Error("triggered scan failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "scan failed")
	}
	s.store.Replace(reports)
	reports, scannedAt := s.store.Snapshot()
	return c.JSON(http.StatusOK, FailuresResponse{
		ScannedAt: scannedAt,
		Count:     len(reports),
		Reports:   reports,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting dashboard", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down dashboard")
	return s.echo.Shutdown(ctx)
}
