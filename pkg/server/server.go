// Package server is the S3 protocol layer: request authentication,
// operation dispatch, ACL gating and XML serialization, composed over
// the metadata tree and the blob store.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carpark/pkg/blob"
	"carpark/pkg/log"
	"carpark/pkg/tree"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	shutdownTimeout = 10 * time.Second

	// readTimeout bounds how long a request body may dribble in
	// before the upload fails as RequestTimeout.
	readTimeout = 5 * time.Minute

	serverName = "carpark"
)

// Server wires the protocol handlers to their collaborators.
type Server struct {
	echo    *echo.Echo
	tree    *tree.Store
	blobs   *blob.Store
	version string
	locks   *keyLocks
}

// New creates a protocol server over the given metadata tree and blob
// store.
func New(treeStore *tree.Store, blobStore *blob.Store, version string) *Server {
	return &Server{
		echo:    echo.New(),
		tree:    treeStore,
		blobs:   blobStore,
		version: version,
		locks:   newKeyLocks(),
	}
}

// Start runs the server until SIGINT/SIGTERM, then shuts down
// gracefully.
func (s *Server) Start(addr string) error {
	s.setupRoutes()
	s.echo.Server.ReadTimeout = readTimeout

	go func() {
		log.Info().
			Str("addr", addr).
			Str("storage_dir", s.blobs.Root()).
			Str("version", s.version).
			Msg("Starting server")

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Shutdown()
}

// Shutdown stops the server, draining in-flight requests.
func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

// Handler exposes the configured routes for tests.
func (s *Server) Handler() http.Handler {
	s.setupRoutes()
	return s.echo
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.authenticate)

	s.echo.GET("/", s.listBuckets)

	s.echo.PUT("/:bucket", s.putBucket)
	s.echo.GET("/:bucket", s.getBucket)
	s.echo.DELETE("/:bucket", s.deleteBucket)

	s.echo.PUT("/:bucket/*", s.putSlot)
	s.echo.HEAD("/:bucket/*", s.headSlot)
	s.echo.GET("/:bucket/*", s.getSlot)
	s.echo.DELETE("/:bucket/*", s.deleteSlot)
}

// handleError is the single protocol boundary where failures turn into
// XML error bodies. Anything outside the taxonomy becomes
// InternalError without leaking detail.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var serviceErr *Error
	if !errors.As(err, &serviceErr) {
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr) && httpErr.Code == http.StatusNotFound:
			serviceErr = ErrNoSuchKey
		case errors.As(err, &httpErr) && httpErr.Code == http.StatusMethodNotAllowed:
			serviceErr = ErrNotImplemented
		default:
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Internal error")
			serviceErr = ErrInternalError
		}
	}

	// 3xx short-circuits carry no body
	if serviceErr.Status < http.StatusBadRequest {
		_ = c.NoContent(serviceErr.Status)
		return
	}

	body := errorResponse{
		Code:      serviceErr.Code,
		Message:   serviceErr.Message,
		Resource:  c.Request().URL.Path,
		RequestID: requestID(c),
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(serviceErr.Status)
		return
	}
	_ = c.XML(serviceErr.Status, body)
}
