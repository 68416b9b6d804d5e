package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/rfsensor/internal/ground"
	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/observability"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr        string
	CORSOrigins []string
}

func DefaultConfig() Config {
	return Config{Addr: ":8090"}
}

// Sources are the snapshots exposed on /status. Nil entries are omitted.
type Sources struct {
	Node         func() sensor.Status
	Mission      func() mission.Progress
	Uploads      func() []ground.VehicleProgress
	Measurements func(ctx context.Context, limit int) ([]ground.Measurement, error)
}

// Server is the read-only status endpoint of one radio node.
type Server struct {
	Name    string
	Addr    string
	Started time.Time

	src    Sources
	router *gin.Engine
	http   *http.Server
}

func New(name string, cfg Config, src Sources) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, name))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:    name,
		Addr:    cfg.Addr,
		Started: time.Now(),
		src:     src,
		router:  r,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("node", s.Name).Str("addr", s.Addr).Msg("server.Server.Serve listening")
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen %s: %w", s.Addr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
