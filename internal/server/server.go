// Package server serves the build output over HTTP and reloads connected
// browsers whenever the output changes.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/livereload"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

// Server is the development server for the output root.
type Server struct {
	root        string
	addr        string
	reloadDelay time.Duration
	logger      logging.Logger

	hub    *livereload.Hub
	router chi.Router

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listener    net.Listener
	watcher     *watcher.FileWatcher

	shutdownOnce sync.Once
}

// New creates a server for the configured output root.
func New(cfg *config.Config, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")

	s := &Server{
		root:        cfg.Paths.Root,
		addr:        net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		reloadDelay: cfg.Server.ReloadDelay,
		logger:      logger,
		hub:         livereload.NewHub(livereload.LocalOrigins{Hosts: []string{cfg.Server.Host}}, logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get(livereload.EndpointPath, s.hub.ServeHTTP)
	r.Get(livereload.ScriptPath, handleClientScript)

	r.Get("/*", s.handleStatic)
	r.Head("/*", s.handleStatic)

	return r
}

// ServeHTTP implements the http.Handler interface, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the live reload hub.
func (s *Server) Hub() *livereload.Hub {
	return s.hub
}

// Addr returns the address the server listens on once started, or the
// configured address before.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start watches the output root and serves it until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create output root %s: %w", s.root, err)
	}

	if err := s.watchOutput(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.stopWatcher()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.serverMutex.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Serving build output", "url", "http://"+listener.Addr().String(), "root", s.root)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// watchOutput starts the coarse watcher over the whole output tree.
func (s *Server) watchOutput(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.reloadDelay, s.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		s.hub.Reload(s.reloadTarget(events))
		return nil
	})
	if err := fw.AddRecursive(s.root); err != nil {
		fw.Stop()
		return fmt.Errorf("failed to watch output root: %w", err)
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return err
	}

	s.serverMutex.Lock()
	s.watcher = fw
	s.serverMutex.Unlock()
	return nil
}

// reloadTarget picks the path reported to browsers for a batch of changes.
// A batch touching only stylesheets names a stylesheet so clients can swap
// styles in place; anything else names the first non-stylesheet file.
func (s *Server) reloadTarget(events []watcher.ChangeEvent) string {
	target := ""
	for _, event := range events {
		rel, err := filepath.Rel(s.root, event.Path)
		if err != nil {
			rel = event.Path
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasSuffix(rel, ".css") {
			return rel
		}
		if target == "" {
			target = rel
		}
	}
	return target
}

func (s *Server) stopWatcher() {
	s.serverMutex.Lock()
	fw := s.watcher
	s.watcher = nil
	s.serverMutex.Unlock()
	if fw != nil {
		fw.Stop()
	}
}

// Shutdown stops the output watcher, disconnects browsers and closes the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.stopWatcher()

		if err := s.hub.Shutdown(ctx); err != nil {
			shutdownErr = err
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String())
	})
}

func handleClientScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(livereload.ClientScript())
}

// handleStatic serves files from the output root. HTML documents get the
// live reload script injected.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean("/" + r.URL.Path)
	name := filepath.Join(s.root, filepath.FromSlash(urlPath))

	info, err := os.Stat(name)
	if err != nil && path.Ext(urlPath) == "" {
		// Pretty URLs: /about serves about.html.
		if htmlInfo, htmlErr := os.Stat(name + ".html"); htmlErr == nil {
			name, info, err = name+".html", htmlInfo, nil
		}
	}
	if err != nil {
		renderNotFound(w, r)
		return
	}

	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		index := filepath.Join(name, "index.html")
		if indexInfo, err := os.Stat(index); err == nil && !indexInfo.IsDir() {
			s.serveFile(w, r, index, indexInfo)
			return
		}
		s.serveListing(w, r, name, urlPath)
		return
	}

	s.serveFile(w, r, name, info)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, name string, info os.FileInfo) {
	w.Header().Set("Cache-Control", "no-store")

	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".html" && ext != ".htm" {
		f, err := os.Open(name)
		if err != nil {
			renderNotFound(w, r)
			return
		}
		defer f.Close()
		http.ServeContent(w, r, name, info.ModTime(), f)
		return
	}

	doc, err := os.ReadFile(name)
	if err != nil {
		renderNotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(InjectScript(doc, livereload.ScriptPath)))
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, dir, urlPath string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		renderNotFound(w, r)
		return
	}
	if !strings.HasSuffix(urlPath, "/") {
		urlPath += "/"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	listingPage(urlPath, listEntries(urlPath, entries)).Render(r.Context(), w)
}
