// Package httpapi serves the chat server's HTTP surface: the websocket push
// endpoint, health checks and Prometheus metrics.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/leroytan/the-website-sub000/internal/logging"
	"github.com/leroytan/the-website-sub000/internal/server/metrics"
)

// Deps are the collaborators the router wires into its handlers. Metrics and
// Checks are optional.
type Deps struct {
	Gateway  Gateway
	Registry ConnRegistry
	Verifier TokenVerifier
	Metrics  *metrics.Metrics
	Checks   map[string]Pinger
	Log      logging.Logger
}

func NewRouter(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	log := d.Log.With("module", "http")

	r := chi.NewRouter()
	if d.Metrics != nil {
		r.Use(Metrics(d.Metrics))
	}
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	ws := &wsHandler{
		gateway:      d.Gateway,
		registry:     d.Registry,
		verifier:     d.Verifier,
		log:          log.With("handler", "ws"),
		writeTimeout: 10 * time.Second,
		pongWait:     60 * time.Second,
	}
	r.Get("/ws", ws.ServeHTTP)
	r.Get("/health", healthHandler(d.Checks))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
	return r
}
