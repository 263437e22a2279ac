// Package adminapi is rserved's optional control-plane HTTP surface:
// GET /healthz, GET /metrics (Prometheus), GET /sessions (the ledger, as
// JSON), and a JWT-gated POST /shutdown.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/rserved/internal/ledger"
	"github.com/marmos91/rserved/internal/logger"
)

// SessionLister is the read side of internal/ledger.Ledger this package
// depends on, kept as an interface so adminapi never needs to import the
// concrete badger-backed store directly.
type SessionLister interface {
	List() ([]ledger.SessionRecord, error)
}

// ShutdownFunc triggers the supervisor's graceful shutdown (`rserved
// start` binds it to cancelling the context its server.Serve runs under).
type ShutdownFunc func()

// Config configures the admin router.
type Config struct {
	JWTSecret string
	Sessions  SessionLister
	Metrics   http.Handler // may be nil to omit GET /metrics
	Shutdown  ShutdownFunc
}

// NewRouter builds the admin HTTP router.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", handleHealthz)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	if cfg.Sessions != nil {
		r.Get("/sessions", handleSessions(cfg.Sessions))
	}

	r.Group(func(r chi.Router) {
		r.Use(requireBearer(cfg.JWTSecret))
		r.Post("/shutdown", handleShutdown(cfg.Shutdown))
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSessions(sessions SessionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := sessions.List()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleShutdown(shutdown ShutdownFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if shutdown == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutdown not configured"})
			return
		}
		go shutdown()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	}
}

// requireBearer gates the route group behind a JWT bearer token signed
// with the configured admin secret. The out-of-band admin shutdown
// trigger is credentialed even though the wire-protocol shutdown command
// is not.
func requireBearer(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "admin auth not configured"})
				return
			}

			token, ok := extractBearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
				return
			}

			parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
