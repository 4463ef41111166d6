package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"blitz/internal/emergency"
	"blitz/internal/engine"
	"blitz/internal/logger"
	"blitz/internal/store/flagstore"
	"blitz/internal/store/opstore"

	"github.com/gin-gonic/gin"
)

// HTTPServer exposes the read-only monitoring API plus the operator override
// for the circuit breaker.
type HTTPServer struct {
	addr   string
	eng    *engine.Engine
	panics *emergency.Protocol
	ops    *opstore.Store
	flags  *flagstore.Store
	router *gin.Engine
}

type HTTPConfig struct {
	Addr   string
	Engine *engine.Engine
	Panic  *emergency.Protocol
	Ops    *opstore.Store
	Flags  *flagstore.Store
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{addr: cfg.Addr, eng: cfg.Engine, panics: cfg.Panic, ops: cfg.Ops, flags: cfg.Flags, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/metrics", s.handleMetrics)
	api.GET("/operations", s.handleOperations)
	api.GET("/flagged", s.handleFlagged)
	api.POST("/breaker/reset", s.handleBreakerReset)
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}

func (s *HTTPServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Status())
}

func (s *HTTPServer) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Status().Metrics)
}

func (s *HTTPServer) handleOperations(c *gin.Context) {
	if s.ops == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operation store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := s.ops.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": recs})
}

func (s *HTTPServer) handleFlagged(c *gin.Context) {
	if s.flags == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "flag store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	tokens, err := s.flags.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flagged": tokens})
}

// handleBreakerReset is the operator override. The breaker otherwise clears
// on its own timer.
func (s *HTTPServer) handleBreakerReset(c *gin.Context) {
	if s.panics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "emergency protocol not configured"})
		return
	}
	s.panics.ResetBreaker()
	logger.Warnf("circuit breaker reset via API")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Router exposes the underlying gin engine for tests.
func (s *HTTPServer) Router() *gin.Engine {
	return s.router
}

// Run serves until the context ends, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("monitoring API listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
