// Package devserver is the HTTP side of a Go backend served by stackctl.
//
// It serves the frontend dev build named in the runtime metadata, falls back
// to index.html for client-side routes, and mounts the application under /api.
package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ternarybob/stackctl/pkg/stackmeta"
)

// Server serves one dev session.
type Server struct {
	meta   stackmeta.Metadata
	app    http.Handler
	router chi.Router
}

// New creates a server for meta. app may be nil.
func New(meta stackmeta.Metadata, app http.Handler) *Server {
	s := &Server{
		meta: meta,
		app:  app,
	}

	s.setupRouter()
	return s
}

// FromEnv creates a server from the metadata stackctl passed to this process.
func FromEnv(app http.Handler) (*Server, error) {
	meta, err := stackmeta.FromEnv()
	if err != nil {
		return nil, err
	}
	return New(meta, app), nil
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	if s.app != nil {
		r.Mount("/api", http.StripPrefix("/api", s.app))
	}

	r.Get("/*", s.handleAsset)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address to listen on.
func (s *Server) Addr() string {
	return s.meta.ListenAddr
}

// ListenAndServe serves on the metadata listen address until the process is
// killed.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.meta.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAsset serves a file from the frontend build; unknown paths without an
// extension get index.html so the frontend router can resolve them.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	root := s.meta.FrontendDevBuildDir
	if root == "" {
		http.NotFound(w, r)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	file := filepath.Join(root, filepath.FromSlash(clean))

	info, err := os.Stat(file)
	switch {
	case err == nil && !info.IsDir():
		http.ServeFile(w, r, file)
		return
	case err != nil && !errors.Is(err, os.ErrNotExist):
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err != nil && path.Ext(clean) != "" {
		http.NotFound(w, r)
		return
	}

	index := filepath.Join(root, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
