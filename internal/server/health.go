package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dirbookd/server/internal/directory"
)

// healthResponse is the /health liveness payload: the process is up.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// readyResponse is the /ready payload: the directory's stores are loaded
// and reachable for a read, not merely that the process is alive.
//
// Adapted from cuemby/warren/pkg/api's HealthServer (liveness/readiness
// split), with the raft-leader check replaced by a coordinator read-probe
// against the Main store, since this server has no cluster membership to
// report on.
type readyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Timestamp: time.Now()})
}

func readyHandler(dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		checks := make(map[string]string)
		ready := true
		var message string

		if _, _, err := dir.SearchMain(r.Context(), ""); err != nil {
			checks["directory"] = "error: " + err.Error()
			ready = false
			message = "directory coordinator not accessible"
		} else {
			checks["directory"] = "ok"
		}

		status := "ready"
		statusCode := http.StatusOK
		if !ready {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(readyResponse{
			Status:    status,
			Timestamp: time.Now(),
			Checks:    checks,
			Message:   message,
		})
	}
}
