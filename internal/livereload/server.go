package livereload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

const shutdownTimeout = 5 * time.Second

// ServerOptions configures a preview Server.
type ServerOptions struct {
	Addr      string
	OutputDir string
	Hub       *Hub
	// Metrics, when set, is served at MetricsPath.
	Metrics     http.Handler
	MetricsPath string
}

// Server serves the output directory, the live reload endpoints and
// optionally Prometheus metrics.
type Server struct {
	opts ServerOptions
	srv  *http.Server
}

func NewServer(opts ServerOptions) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{opts: opts}
	// No write timeout: SSE connections are long lived.
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.opts.Hub != nil {
		mux.Handle("/livereload", s.opts.Hub)
		mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			if _, err := w.Write([]byte(Script)); err != nil {
				slog.Debug("failed to write livereload script", logfields.Error(err))
			}
		})
	}
	if s.opts.Metrics != nil {
		mux.Handle(s.opts.MetricsPath, s.opts.Metrics)
	}
	mux.Handle("/", s.siteHandler())
	return withMiddleware(mux)
}

// siteHandler serves pages by slug: /notes/a is answered from
// notes/a.html and / from index.html.
func (s *Server) siteHandler() http.Handler {
	files := http.FileServer(http.Dir(s.opts.OutputDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if p == "/" {
			p = "/index"
		}
		if path.Ext(p) == "" {
			candidate := filepath.Join(s.opts.OutputDir, filepath.FromSlash(p)+".html")
			if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
				w.Header().Set("Cache-Control", "no-cache")
				http.ServeFile(w, r, candidate)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("Preview server listening", slog.String("url", "http://"+ln.Addr().String()))
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if s.opts.Hub != nil {
		s.opts.Hub.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", logfields.Error(err))
	}
	return nil
}
