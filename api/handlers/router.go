package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// HTTPMetrics records per-request metrics. May be nil.
type HTTPMetrics interface {
	ObserveHTTPRequest(method, path, status string, duration time.Duration)
}

// Router bundles the service handlers into one http.Handler.
type Router struct {
	Health        *HealthHandler
	Conversations *ConversationHandler
	Deliberation  *DeliberationHandler
	Metrics       http.Handler // /metrics endpoint, usually promhttp
	HTTPMetrics   HTTPMetrics
}

// Build registers every route on a fresh mux.
func (rt *Router) Build() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", rt.Health.HandleRoot)
	mux.HandleFunc("GET /health", rt.Health.HandleHealth)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	mux.HandleFunc("GET /api/conversations", rt.Conversations.HandleList)
	mux.HandleFunc("POST /api/conversations", rt.Conversations.HandleCreate)
	mux.HandleFunc("GET /api/conversations/{id}", rt.Conversations.HandleGet)
	mux.HandleFunc("DELETE /api/conversations/{id}", rt.Conversations.HandleDelete)

	mux.HandleFunc("POST /api/conversations/{id}/message/stream", rt.Deliberation.HandleStream)
	mux.HandleFunc("POST /api/conversations/{id}/clarification", rt.Deliberation.HandleClarification)

	var handler http.Handler = mux
	if rt.HTTPMetrics != nil {
		handler = rt.instrument(handler)
	}
	return handler
}

func (rt *Router) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		rt.HTTPMetrics.ObserveHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
	})
}

// statusRecorder captures the response status while passing through
// the Flusher needed by the SSE endpoint.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
