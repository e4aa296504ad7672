package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"

	"calconv/internal/config"
	appLog "calconv/internal/log"
	"calconv/internal/metrics"
	"calconv/internal/service"
)

// Converter is the conversion capability the HTTP layer needs.
type Converter interface {
	Convert(ctx context.Context, name, url string) (string, error)
}

// Server serves the conversion endpoint plus /health and /metrics.
type Server struct {
	cfg    *config.Config
	conv   Converter
	router *mux.Router
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, conv Converter) *Server {
	s := &Server{
		cfg:    cfg,
		conv:   conv,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(requestLogger, recovery)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		s.router.Use(s.basicAuthMiddleware)
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/conv", s.handleConvert).Methods(http.MethodGet, http.MethodHead)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calconv", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleConvert converts a remote calendar.
//
// GET /conv?c=somtoday&url=https://...
//   - c:   converter name
//   - url: remote calendar feed
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("c")
	url := q.Get("url")
	if name == "" || url == "" {
		writeError(w, http.StatusBadRequest, "query parameters c and url are required")
		return
	}

	out, err := s.conv.Convert(r.Context(), name, url)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			appLog.Error("conversion failed", err, "converter", name, "url", appLog.RedactURL(url), "kind", service.KindOf(err))
		} else {
			appLog.Warn("conversion rejected", "converter", name, "url", appLog.RedactURL(url), "kind", service.KindOf(err), "err", err)
		}
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name+".ics"))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(out))
	}
}

// statusFor maps a conversion error to a status and a client-safe message.
func statusFor(err error) (int, string) {
	switch service.KindOf(err) {
	case service.KindConverterNotFound:
		return http.StatusNotFound, "unknown converter"
	case service.KindFetch:
		return http.StatusBadGateway, "failed to fetch calendar"
	default:
		return http.StatusInternalServerError, "failed to convert calendar"
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		d := time.Since(start)
		metrics.RecordRequest(r.Method, route, rw.status, d)
		appLog.Info("http request",
			"method", r.Method,
			"route", route,
			"status", rw.status,
			"duration_ms", d.Milliseconds(),
		)
	})
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				appLog.Error("http handler panic", fmt.Errorf("%v", rec), "path", r.URL.Path, "stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
