// Package server exposes circuit compilation over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AnatoleLucet/render"
	"github.com/AnatoleLucet/render/circuit"
	"github.com/AnatoleLucet/render/circuit/autorouter"
	"github.com/AnatoleLucet/render/internal/config"
	"github.com/AnatoleLucet/render/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	version = "0.1.0"

	maxBodyBytes = 1 << 20
)

type Server struct {
	cfg    config.Config
	env    *circuit.Env
	router *gin.Engine
	logger zerolog.Logger

	// answers POST /autoroute
	routes autorouter.Router

	started time.Time
}

func New(cfg config.Config, env *circuit.Env, logger zerolog.Logger) *Server {
	if env == nil {
		env = circuit.NewEnv(cfg, logger)
	}

	metrics.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(RequestMetrics())
	r.Use(cors.New(corsConfig(cfg.Server.CorsOrigins)))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		env:     env,
		router:  r,
		logger:  logger,
		routes:  autorouter.Local{},
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}

	normalized := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			normalized = append(normalized, o)
		}
	}
	if len(normalized) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = normalized
	}
	return cfg
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "render",
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/render", s.handleRender)
	s.router.POST("/autoroute", s.handleAutoroute)
}

type timing struct {
	Phase   string  `json:"phase"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
	Runs    int     `json:"runs"`
}

func timings(report *render.Report) []timing {
	rows := report.Rows()
	out := make([]timing, 0, len(rows))
	for _, row := range rows {
		out = append(out, timing{
			Phase:   string(row.Phase),
			TotalMS: float64(row.Total) / float64(time.Millisecond),
			MaxMS:   float64(row.Max) / float64(time.Millisecond),
			Runs:    row.Runs,
		})
	}
	return out
}

func (s *Server) handleRender(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var desc circuit.Description
	if err := c.ShouldBindJSON(&desc); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	result, err := circuit.Compile(c.Request.Context(), desc, s.env, render.WithConfig(s.cfg))
	if err != nil {
		status := renderStatus(err)
		body := gin.H{"error": err.Error()}

		var stall *render.StallError
		if errors.As(err, &stall) {
			body["running"] = stall.Running
		}
		if result != nil {
			body["sweeps"] = result.Sweeps
		}

		s.logger.Warn().Err(err).Str("root", desc.Name).Int("status", status).Msg("render failed")
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": result.Document.Records,
		"sweeps":  result.Sweeps,
		"timings": timings(result.Report),
	})
}

func renderStatus(err error) int {
	switch {
	case errors.Is(err, circuit.ErrInvalidRoot):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleAutoroute(c *gin.Context) {
	var req autorouter.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	route, err := s.routes.Route(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, route)
}

// Serve listens on the configured address until ctx is done, then shuts the
// server down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
