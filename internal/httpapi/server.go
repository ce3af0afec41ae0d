// Package httpapi is the coordinator's wire protocol (spec §6): JSON
// over HTTP, versioned under /v2/, with signed-request authentication
// on every protected endpoint. Routing follows gorilla/mux the way the
// rest of the example pack's services do; handlers are methods on
// Server so every collaborator is constructor-injected, never a
// package-level global.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hetu-project/validator-coordinator/internal/core"
	"github.com/hetu-project/validator-coordinator/internal/identity"
)

// Server holds every collaborator the HTTP layer needs.
type Server struct {
	Coordinator *core.Coordinator
	Auth        *identity.Verifier
	Log         *logrus.Entry
	CORSOrigins []string
	Metrics     *Metrics
}

// NewServer wires a Server and its gorilla/mux router.
func NewServer(coordinator *core.Coordinator, auth *identity.Verifier, corsOrigins []string, log *logrus.Entry) *Server {
	return &Server{
		Coordinator: coordinator,
		Auth:        auth,
		Log:         log,
		CORSOrigins: corsOrigins,
		Metrics:     NewMetrics(),
	}
}

// Router builds the complete handler: /v2 routes, a blanket 410 for
// /v1/*, and /metrics for Prometheus scraping.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)

	v2 := r.PathPrefix("/v2").Subrouter()
	v2.Handle("/submit", s.requireRole(roleMiner, http.HandlerFunc(s.handleSubmit))).Methods(http.MethodPost)
	v2.Handle("/validation", s.requireRole(roleValidator, http.HandlerFunc(s.handleGetValidation))).Methods(http.MethodGet)
	v2.Handle("/validation_result", s.requireRole(roleValidator, http.HandlerFunc(s.handlePostValidationResult))).Methods(http.MethodPost)
	v2.Handle("/scores", s.requireRole(roleValidator, http.HandlerFunc(s.handleGetScores))).Methods(http.MethodGet)
	v2.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.PathPrefix("/v1/").HandlerFunc(s.handleDeprecated)

	return r
}

// ListenAndServe starts the HTTP server with sane timeouts, grounded on
// the teacher's direct http.ListenAndServe call, hardened the way a
// production service wraps it with an *http.Server and explicit
// deadlines instead of the bare package-level function.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
