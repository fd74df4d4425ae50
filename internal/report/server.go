package report

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
)

// Server exposes the latest report over HTTP.
type Server struct {
	holder *Holder
	e      *echo.Echo
	srv    *http.Server
}

func NewServer(holder *Holder) *Server {
	e := echo.New()
	s := &Server{holder: holder, e: e, srv: &http.Server{Handler: e}}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.e.GET("/healthz", s.handleHealthz)
	s.e.GET("/api/report", s.handleReport)
	s.e.GET("/api/report/summary", s.handleReportSummary)
}

func (s *Server) handleHealthz(c *echo.Context) error {
	_, updatedAt, ok := s.holder.Latest()
	body := map[string]any{"status": "ok", "hasReport": ok}
	if ok {
		body["reportUpdatedAt"] = updatedAt.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) handleReport(c *echo.Context) error {
	rep, _, ok := s.holder.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no audit has completed yet")
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handleReportSummary(c *echo.Context) error {
	rep, updatedAt, ok := s.holder.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no audit has completed yet")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"reportId":       rep.ReportID,
		"metadata":       rep.Metadata,
		"summary":        rep.Summary,
		"securityAlerts": rep.SecurityAlerts,
		"updatedAt":      updatedAt.Format(time.RFC3339),
	})
}

// Handler exposes the routing tree, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
