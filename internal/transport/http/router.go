package http

import (
	"net/http"

	"github.com/rs/cors"
)

// Middleware decorates the handler registered under pattern.
type Middleware func(pattern string, next http.Handler) http.Handler

// NewRouter mounts the REST API, the operator websocket and the health check.
func NewRouter(api *APIHandler, ws *WSHandler, mw Middleware) *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		if mw == nil {
			mux.Handle(pattern, h)
			return
		}
		mux.Handle(pattern, mw(pattern, h))
	}

	handle("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	handle("GET /api/sessions", api.listSessions)
	handle("POST /api/sessions", api.startSession)
	handle("GET /api/sessions/{id}", api.getSession)
	handle("DELETE /api/sessions/{id}", api.stopSession)
	handle("POST /api/sessions/{id}/commands", api.sendCommand)
	handle("POST /api/key-events", api.recordKeyEvent)
	handle("POST /api/key-events/create/{$}", api.recordKeyEvent)
	handle("GET /api/key-events/latest", api.latestKeyEvent)
	handle("GET /api/key-events/latest/{$}", api.latestKeyEvent)
	handle("GET /ws", ws.ServeWS)
	return mux
}

// WithCORS lets a console served from another origin call the API. An empty origin
// list allows every origin.
func WithCORS(next http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(next)
}
