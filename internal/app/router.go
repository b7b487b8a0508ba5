package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const readyTimeout = 2 * time.Second

// Router serves liveness and readiness probes.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", a.health).Methods(http.MethodGet)
	router.HandleFunc("/ready", a.ready).Methods(http.MethodGet)
	return router
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := a.Store.Ping(ctx); err != nil {
		a.log.WithContext(r.Context()).Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": a.Config.Store})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
