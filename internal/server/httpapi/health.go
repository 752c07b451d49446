package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Checks    map[string]check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:    "healthy",
			Checks:    make(map[string]check, len(checks)),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		for name, p := range checks {
			start := time.Now()
			if err := p.Ping(ctx); err != nil {
				resp.Checks[name] = check{Status: "fail", Message: "connection failed"}
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = check{Status: "pass", Latency: time.Since(start).String()}
		}

		status := http.StatusOK
		if resp.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorFrame{Error: errorBody{Code: code, Message: message}})
}
