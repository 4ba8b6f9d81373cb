package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the websocket endpoint, the allow-listed notification endpoint and a health probe.
func NewRouter(g *Gateway, allow *IPAllowList) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", g.ServeWS).Methods(http.MethodGet)
	r.Handle("/notification", allow.Middleware(http.HandlerFunc(g.ServeNotification))).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}
