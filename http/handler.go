package http

import (
	"net/http"
)

// HandleHealthCheck reports liveness. It succeeds as long as the process
// serves requests.
func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleReadyCheck reports readiness from the given check. Not ready maps to
// 503 so load balancers hold traffic without marking the process dead.
func HandleReadyCheck(readinessCheck func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !readinessCheck() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandleVersion serves the build version.
func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, versionPayload{Version: version})
	}
}

type versionPayload struct {
	Version string `json:"version"`
}
