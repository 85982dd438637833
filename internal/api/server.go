package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/archive"
	"github.com/bannerbuildr/internal/assets"
	"github.com/bannerbuildr/internal/binder"
	"github.com/bannerbuildr/internal/bundle"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/preview"
	"github.com/bannerbuildr/internal/records"
	"github.com/bannerbuildr/internal/session"
)

// DefaultMaxUploadBytes bounds template uploads.
const DefaultMaxUploadBytes = 64 << 20

// Deps are the collaborators the handlers use.
type Deps struct {
	Store    *session.Store
	Renderer *preview.Renderer
	Handles  *assets.HandleStore
	// Mapper is nil when no inference provider is configured.
	Mapper   *mapping.Mapper
	Binder   *binder.Binder
	Records  records.Source
	Packager *archive.Packager

	BundleOptions  []bundle.Option
	MaxUploadBytes int64
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	addr string
	deps Deps
}

// NewServer creates a new API server
func NewServer(addr string, deps Deps) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		ExposeHeaders: []string{FailedHeader, echo.HeaderContentDisposition},
	}))

	server := &Server{
		echo: e,
		addr: addr,
		deps: deps,
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	health := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	}
	s.echo.GET("/health", health)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", health)

	// Templates
	v1.POST("/templates", s.uploadTemplate)
	v1.GET("/templates/:id", s.getTemplate)
	v1.POST("/templates/:id/mapping", s.mapTemplate)
	v1.POST("/templates/:id/variations", s.createVariations)

	// Data sources
	v1.POST("/sheets/fetch", s.fetchSheets)

	// Variations
	v1.GET("/variations", s.listVariations)
	v1.DELETE("/variations", s.clearVariations)
	v1.GET("/variations/:id/preview", s.previewVariation)
	v1.GET("/variations/:id/frame", s.frameVariation)

	// Asset serving
	v1.GET("/banners/:id/assets/:name", s.serveAsset)
	v1.GET("/handles/:token", s.serveHandle)

	// Downloads
	v1.GET("/download/:id", s.downloadOne)
	v1.POST("/download", s.downloadBatch)
}

// Start begins the API server and blocks until an interrupt, then shuts down
// and releases every preview.
func (s *Server) Start() error {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting API server")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.echo.Shutdown(ctx)
	if s.deps.Renderer != nil {
		s.deps.Renderer.Close()
	}
	return err
}
