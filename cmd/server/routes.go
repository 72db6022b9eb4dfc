//go:build !js && !wasm

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AudioInsight/internal/config"
	"github.com/himanishpuri/AudioInsight/pkg/insight"
	"github.com/himanishpuri/AudioInsight/pkg/utils"
)

// setupRoutes registers all HTTP routes and middleware
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/health", s.handleHealth)

	var handler http.Handler = mux
	handler = s.recoverMiddleware(handler)
	handler = corsMiddleware(s.config.CORS)(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// corsMiddleware adds CORS headers for allowed origins. The policy is fixed
// when the middleware is built.
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := slices.Clone(cfg.AllowedOrigins)
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")
	methods := strings.Join(cfg.AllowedMethods, ", ")
	anyHeader := slices.Contains(cfg.AllowedHeaders, "*")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	credentials := cfg.AllowCredentials
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if !allowAll && !slices.Contains(origins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			// Browsers reject "*" on credentialed requests, so echo the origin.
			if allowAll && !credentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", methods)
				if anyHeader {
					if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
						h.Set("Access-Control-Allow-Headers", requested)
					}
				} else if headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				if maxAge != "" {
					h.Set("Access-Control-Max-Age", maxAge)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware assigns a request id, attaches a request-scoped logger
// and logs every request with its status and latency.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := utils.RequestIDFrom(r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)

		log := s.log.With("req=" + id)
		r = r.WithContext(insight.ContextWithLogger(r.Context(), log))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		log.Debugf("%s %s from %s", r.Method, r.URL.Path, getClientIP(r))

		next.ServeHTTP(wrapped, r)

		log.Infof("%s %s -> %d (%s)", r.Method, r.URL.Path, wrapped.statusCode,
			time.Since(start).Round(time.Millisecond))
	})
}

// recoverMiddleware turns a panic in a handler into the generic error body.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			log := insight.LoggerFrom(r.Context(), s.log)
			log.Errorf("Panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())

			if rw, ok := w.(*responseWriter); ok && rw.wroteHeader {
				return
			}
			s.respondFailure(w, r, insight.UnexpectedFailure.String(), insight.MsgServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests.
// When metrics are enabled they are served on their own listener.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
	}
	servers := []*http.Server{srv}

	if s.metrics != nil && s.config.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              s.config.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	s.log.Infof("AudioInsight server starting on %s", srv.Addr)
	s.log.Infof("   Max duration: %gs, max upload: %d MB",
		s.config.Analysis.MaxDurationSec, s.config.Server.MaxUploadMB)
	s.log.Infof("   CORS origins: %v (credentials=%t)", s.config.CORS.AllowedOrigins, s.config.CORS.AllowCredentials)
	if len(servers) > 1 {
		s.log.Infof("   Metrics: http://%s/metrics", s.config.Metrics.Addr)
	}
	s.log.Infof("Endpoints:")
	s.log.Infof("   POST    /analyze   - Analyze an audio file")
	s.log.Infof("   OPTIONS /analyze   - CORS preflight")
	s.log.Infof("   GET     /health    - Health check")

	errCh := make(chan error, len(servers))
	for _, hs := range servers {
		go func(hs *http.Server) {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", hs.Addr, err)
			}
		}(hs)
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Infof("Shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	for _, hs := range servers {
		if err := hs.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("Shutdown of %s: %v", hs.Addr, err)
		}
	}
	return runErr
}
