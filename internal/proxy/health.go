package proxy

import (
	"net/http"
	"time"
)

// livenessHandler handles liveness check requests.
// Always returns 200 OK to indicate the process is alive.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
}

// readinessHandler handles readiness check requests.
// Returns 200 OK if the application is ready to serve traffic, 503 otherwise.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		if checker.IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
}

// serviceName identifies the proxy in status responses.
const serviceName = "clawd"

// Version is reported by the info endpoint. Set at build time.
var Version = "dev"

type statusResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// statusHandler returns a JSON status document for humans and scripts.
func statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(r.Context(), w, statusResponse{
			Status:    "ok",
			Service:   serviceName,
			Timestamp: time.Now().UTC(),
		}, http.StatusOK)
	}
}

type infoResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// infoHandler describes the service at the root path.
func infoHandler() http.HandlerFunc {
	info := infoResponse{
		Service: serviceName,
		Version: Version,
		Endpoints: []string{
			"/v1/messages",
			"/v1/messages/count_tokens",
			"/v1beta/models/{model}:generateContent",
			"/v1beta/models/{model}:streamGenerateContent",
			"/v1beta/models/{model}:countTokens",
			"/health",
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, info, http.StatusOK)
	}
}
