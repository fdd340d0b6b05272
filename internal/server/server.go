// Package server exposes the media pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thangam2001/Utility-App/internal/history"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/pipeline"
	"github.com/Thangam2001/Utility-App/internal/storage"
)

const (
	defaultMaxUpload       = 25 << 20
	defaultShutdownTimeout = 10 * time.Second
	defaultOCRTimeout      = 2 * time.Minute
)

// Server serves the pipeline operations, stored results and history
type Server struct {
	processor *pipeline.Processor
	store     storage.Store
	ledger    history.Ledger
	logger    *logger.Logger

	addr            string
	maxUpload       int64
	origins         []string
	publicURL       string
	shutdownTimeout time.Duration
	pidFile         string
	ocrTimeout      time.Duration

	handler http.Handler
}

// Config holds configuration for the server
type Config struct {
	Logger    *logger.Logger
	Processor *pipeline.Processor
	Store     storage.Store
	Ledger    history.Ledger

	// Addr is the listen address in host:port form
	Addr string

	// MaxUploadBytes caps the uploaded file (default: 25 MiB)
	MaxUploadBytes int64

	// ClientOrigins are the CORS origins allowed to call the API ("*" = any)
	ClientOrigins []string

	// PublicURL overrides the scheme and host of download links
	PublicURL string

	ShutdownTimeout time.Duration // Graceful shutdown bound (default: 10s)
	PIDFile         string        // Optional PID file path
	OCRTimeout      time.Duration // Bound on a recognition request (default: 2m)
}

// New creates a new server instance
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}

	ocrTimeout := cfg.OCRTimeout
	if ocrTimeout <= 0 {
		ocrTimeout = defaultOCRTimeout
	}

	origins := cfg.ClientOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		processor:       cfg.Processor,
		store:           cfg.Store,
		ledger:          cfg.Ledger,
		logger:          log,
		addr:            cfg.Addr,
		maxUpload:       maxUpload,
		origins:         origins,
		publicURL:       cfg.PublicURL,
		shutdownTimeout: shutdown,
		pidFile:         cfg.PIDFile,
		ocrTimeout:      ocrTimeout,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler with all routes and middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and blocks until ctx is canceled or
// a shutdown signal is received, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.pidFile != "" {
		if err := s.writePIDFile(); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer s.removePIDFile()
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		s.logger.WithFields("addr", ln.Addr().String()).Info("Starting HTTP server")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context canceled, shutting down")
	case sig := <-sigChan:
		s.logger.WithFields("signal", sig.String()).Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("Failed to shutdown HTTP server gracefully")
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// writePIDFile writes the current process ID to the configured PID file
func (s *Server) writePIDFile() error {
	pid := os.Getpid()
	content := fmt.Sprintf("%d\n", pid)

	if err := os.WriteFile(s.pidFile, []byte(content), 0644); err != nil {
		return err
	}

	s.logger.WithFields("pid", pid, "file", s.pidFile).Info("Wrote PID file")
	return nil
}

// removePIDFile removes the PID file
func (s *Server) removePIDFile() {
	if err := os.Remove(s.pidFile); err != nil {
		s.logger.WithFields("file", s.pidFile, "error", err).
			Warn("Failed to remove PID file")
	} else {
		s.logger.WithFields("file", s.pidFile).Info("Removed PID file")
	}
}
