package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/crosslink/internal/db"
	"horse.fit/crosslink/internal/globaltime"
	"horse.fit/crosslink/internal/index"
	"horse.fit/crosslink/internal/linkplan"
)

// Planner is the link-planning capability the API fronts.
type Planner interface {
	PlanAndApply(ctx context.Context, articleUUID string) (*linkplan.PlanResult, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	APITokenHash    string
}

type Server struct {
	pool    *db.Pool
	planner Planner
	logger  zerolog.Logger
	opts    Options
}

func NewServer(pool *db.Pool, planner Planner, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Planning waits on index round trips; give writes headroom.
		writeTimeout = 120 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:    pool,
		planner: planner,
		logger:  logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			APITokenHash:    opts.APITokenHash,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("crosslink api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("crosslink api server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/links/stats", s.handleLinkStats)
	api.GET("/articles/:article_uuid/links", s.handleArticleLinks)
	api.POST("/articles/:article_uuid/links/plan", s.handlePlan, s.requireToken())

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "crosslink",
		"time":    globaltime.UTC(),
	})
}

// handlePlan runs plan-and-apply for one article. Index backend outages map
// to 503 so the publishing flow can retry; an empty plan is a 200 with a
// reason code.
func (s *Server) handlePlan(c echo.Context) error {
	articleUUID := strings.TrimSpace(c.Param("article_uuid"))
	if _, err := uuid.Parse(articleUUID); err != nil {
		return failValidation(c, map[string]string{"article_uuid": "must be a valid UUID"})
	}

	result, err := s.planner.PlanAndApply(c.Request().Context(), articleUUID)
	if err != nil {
		if index.IsBackendError(err) {
			s.logger.Warn().Err(err).Str("article_uuid", articleUUID).Msg("index backend unavailable")
			return failUnavailable(c, "Index backend unavailable")
		}
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Article not found")
		}
		s.logger.Error().Err(err).Str("article_uuid", articleUUID).Msg("plan failed")
		return internalError(c, "Failed to plan links")
	}

	return success(c, result)
}

func (s *Server) handleArticleLinks(c echo.Context) error {
	articleUUID := strings.TrimSpace(c.Param("article_uuid"))
	if _, err := uuid.Parse(articleUUID); err != nil {
		return failValidation(c, map[string]string{"article_uuid": "must be a valid UUID"})
	}

	direction := strings.TrimSpace(strings.ToLower(c.QueryParam("direction")))
	if direction == "" {
		direction = "outbound"
	}

	var (
		links []db.LinkRecord
		err   error
	)
	switch direction {
	case "outbound":
		links, err = s.pool.ListLinksBySource(c.Request().Context(), articleUUID)
	case "inbound":
		links, err = s.pool.ListLinksByTarget(c.Request().Context(), articleUUID)
	default:
		return failValidation(c, map[string]string{"direction": "must be outbound or inbound"})
	}
	if err != nil {
		s.logger.Error().Err(err).Str("article_uuid", articleUUID).Msg("query links failed")
		return internalError(c, "Failed to load links")
	}

	return success(c, map[string]any{
		"items":     links,
		"direction": direction,
	})
}

func (s *Server) handleLinkStats(c echo.Context) error {
	topN, err := parsePositiveInt(c.QueryParam("top"), 10, 1, 100)
	if err != nil {
		return failValidation(c, map[string]string{"top": err.Error()})
	}

	stats, err := s.pool.QueryLinkStats(c.Request().Context(), topN)
	if err != nil {
		s.logger.Error().Err(err).Msg("query link stats failed")
		return internalError(c, "Failed to load link stats")
	}
	return success(c, stats)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
