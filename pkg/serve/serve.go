// Package serve runs the capability execution server: an HTTP surface
// that routes invocation requests to a loaded extension's capabilities
// and normalizes every outcome into a stable response envelope.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/plugkit/plugkit/pkg/extension"
)

const (
	// DefaultPort is the default listen port for the execution server.
	DefaultPort = 8005

	// fileServiceURLEnv names the environment variable pointing at the
	// platform's file-content service.
	fileServiceURLEnv = "PLUGKIT_SERVER_URL"
)

// Options configures a Server.
type Options struct {
	Host string
	Port int

	// Files overrides the injected file-content service. When nil, an
	// HTTP client against $PLUGKIT_SERVER_URL is used.
	Files extension.FileService

	Logger *slog.Logger
}

// Server hosts one loaded extension. The registry is built once at
// construction and never mutated, so request handling shares no
// mutable state across requests.
type Server struct {
	ext   *extension.Extension
	reg   *extension.Registry
	files extension.FileService
	log   *slog.Logger

	host string
	port int
}

// New indexes the extension's capabilities and returns a server ready
// to listen. Duplicate capability names surface here, at load time.
func New(ext *extension.Extension, opts Options) (*Server, error) {
	reg, err := extension.NewRegistry(ext)
	if err != nil {
		return nil, fmt.Errorf("loading extension %q: %w", ext.Name, err)
	}

	files := opts.Files
	if files == nil {
		base := os.Getenv(fileServiceURLEnv)
		files = NewFilesClient(base)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Server{
		ext:   ext,
		reg:   reg,
		files: files,
		log:   logger,
		host:  host,
		port:  port,
	}, nil
}

// Handler returns the server's HTTP handler. Exposed separately so
// tests can drive the full request lifecycle without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /manifest", s.handleManifest)
	mux.HandleFunc("GET /nodes", s.handleListNodes)
	mux.HandleFunc("POST /validate-config", s.handleValidateConfig)
	mux.HandleFunc("POST /nodes/{name}/execute", s.handleExecuteNode)
	mux.HandleFunc("POST /nodes/{name}/config", s.handleNodeConfig)
	mux.HandleFunc("POST /integrations/{name}/config", s.handleIntegrationConfig)
	mux.HandleFunc("POST /integrations/{name}/ready", s.handleIntegrationReady)

	return mux
}

// ListenAndServe starts the server and blocks until the context is
// cancelled or a shutdown signal arrives. Returns nil on clean
// shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("execution server listening",
			"addr", addr, "extension", s.ext.Name, "nodes", s.reg.NodeNames())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case sig := <-sigCh:
		s.log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.log.Info("context cancelled, shutting down")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutting down execution server: %w", err)
	}
	return nil
}
