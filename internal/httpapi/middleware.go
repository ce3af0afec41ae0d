package httpapi

import (
	"net/http"
	"time"

	"github.com/hetu-project/validator-coordinator/internal/coreerr"
	"github.com/hetu-project/validator-coordinator/internal/identity"
	"github.com/hetu-project/validator-coordinator/internal/principal"
)

type requiredRole int

const (
	roleMiner requiredRole = iota
	roleValidator
)

// requireRole authenticates the signed-request headers (spec §6), then
// checks the recovered principal's classification against want before
// delegating to next. An auth failure answers 401 or 403 with the
// failing check's message and never reaches the handler, so it carries
// no submission data (spec §4.8 "Validator auth failures never leak
// submission data").
func (s *Server) requireRole(want requiredRole, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := identity.Request{
			Address:   r.Header.Get("X-Identity-Address"),
			Signature: r.Header.Get("X-Signature"),
			Message:   r.Header.Get("X-Auth-Message"),
			Timestamp: r.Header.Get("X-Auth-Timestamp"),
		}

		address, err := s.Auth.Verify(req)
		if err != nil {
			writeError(w, s.Log, err)
			return
		}

		role := s.Coordinator.Gate.Classify(r.Context(), address)
		switch {
		case want == roleMiner && role != principal.RoleMiner:
			writeError(w, s.Log, coreerr.New(coreerr.KindAuthz, "principal is not a registered miner"))
			return
		case want == roleValidator && role != principal.RoleValidator:
			writeError(w, s.Log, coreerr.New(coreerr.KindAuthz, "principal is not a registered validator"))
			return
		}

		ctx := withPrincipal(r.Context(), address, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.Log != nil {
			s.Log.WithFields(map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Info("request")
		}
		s.Metrics.ObserveRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Identity-Address, X-Signature, X-Auth-Message, X-Auth-Timestamp")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.CORSOrigins) == 0 {
		return true
	}
	for _, o := range s.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.Log != nil {
					s.Log.WithField("panic", rec).Error("recovered from panic in handler")
				}
				writeJSON(w, http.StatusInternalServerError, errorResponse{
					Error:   string(coreerr.KindInternal),
					Message: "internal error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
