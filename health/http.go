package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// LivenessHandler always answers 200 OK.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler answers 200 unless a check is unhealthy.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := Overall(agg.CheckAll(r.Context()))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(httpStatus(status))
		_, _ = w.Write([]byte(status.String()))
	}
}

// Response is the JSON body of the detailed endpoint.
type Response struct {
	Status     string                   `json:"status"`
	Timestamp  string                   `json:"timestamp"`
	Components map[Component]string    `json:"components,omitempty"`
	Checks     map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is one check in Response.
type CheckResponse struct {
	Status    string         `json:"status"`
	Component Component      `json:"component,omitempty"`
	Target    string         `json:"target,omitempty"`
	Message   string         `json:"message,omitempty"`
	Duration  string         `json:"duration,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// DetailedHandler answers with every check result as JSON.
func DetailedHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := agg.CheckAll(r.Context())
		status := Overall(results)

		resp := Response{
			Status:     status.String(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Components: make(map[Component]string),
			Checks:     make(map[string]CheckResponse, len(results)),
		}
		for component, st := range ByComponent(results) {
			resp.Components[component] = st.String()
		}
		for name, res := range results {
			c := CheckResponse{
				Status:    res.Status.String(),
				Component: res.Component,
				Target:    res.Target,
				Message:   res.Message,
				Duration:  res.Duration.String(),
				Details:   res.Details,
			}
			if res.Error != nil {
				c.Error = res.Error.Error()
			}
			resp.Checks[name] = c
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus(status))
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// RegisterHandlers mounts /healthz, /readyz and /health on mux.
func RegisterHandlers(mux *http.ServeMux, agg *Aggregator) {
	mux.HandleFunc("GET /healthz", LivenessHandler())
	mux.HandleFunc("GET /readyz", ReadinessHandler(agg))
	mux.HandleFunc("GET /health", DetailedHandler(agg))
}

func httpStatus(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
