// Package api exposes the reporting and registration endpoints. Every
// identifier in a response is a pubkey hash; raw pubkeys never leave the
// process.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"kdf-swap-tracker/internal/events"
	"kdf-swap-tracker/internal/idhash"
	"kdf-swap-tracker/internal/metrics"
	"kdf-swap-tracker/internal/observability"
	"kdf-swap-tracker/internal/registration"
	"kdf-swap-tracker/internal/storage"
)

// Controller wires HTTP handlers to the reporting core. Registration may be
// nil when the workflow is disabled; its endpoints then return 503.
type Controller struct {
	Store        storage.SwapStore
	Aggregator   *metrics.Aggregator
	Resolver     *events.Resolver
	Hasher       *idhash.Hasher
	Registration *registration.Service
	Logger       *zap.Logger
}

// NewRouter builds the service router.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", c.HandleHealth).Methods("GET")
	r.Handle("/metrics", observability.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/events", c.HandleEvents).Methods("GET")
	api.HandleFunc("/events/{name}", c.HandleEventDetail).Methods("GET")
	api.HandleFunc("/traders", c.HandleTraders).Methods("GET")
	api.HandleFunc("/traders/{pubkey}/swaps", c.HandleTraderSwaps).Methods("GET")
	api.HandleFunc("/swaps/total", c.HandleSwapsTotal).Methods("GET")
	api.HandleFunc("/swaps/{uuid}", c.HandleSwap).Methods("GET")
	api.HandleFunc("/stats/pair", c.HandlePairStats).Methods("GET")
	api.HandleFunc("/hash", c.HandleHash).Methods("GET")
	api.HandleFunc("/identify", c.HandleIdentify).Methods("GET")
	api.HandleFunc("/registrations", c.HandleRegister).Methods("POST")
	api.HandleFunc("/registrations/{address}", c.HandleRegistrationStatus).Methods("GET")
	api.HandleFunc("/players", c.HandlePlayers).Methods("GET")

	r.HandleFunc("/ws/total", c.HandleTotalFeed).Methods("GET")

	r.Use(corsMiddleware)
	return r
}

// HandleHealth is the liveness check.
func (c *Controller) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// corsMiddleware permits cross-origin reads; the API is public and
// read-mostly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
