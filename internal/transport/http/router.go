package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"keyrelay/internal/auth"
	obsmw "keyrelay/internal/observability/middleware"
	"keyrelay/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	svc *service.Service
}

// NewRouter wires the operation surface. Everything under /api/signal
// requires a resolved principal; /healthz and /metrics do not.
func NewRouter(svc *service.Service, verifier *auth.Verifier, rateLimit int) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Trace-ID"},
		MaxAge:         300,
	}))
	if rateLimit > 0 {
		r.Use(httprate.LimitByIP(rateLimit, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/signal", func(r chi.Router) {
		r.Use(verifier.Middleware)

		r.Post("/devices", h.registerDevice)
		r.Get("/devices", h.listOwnDevices)
		r.Post("/devices/prune", h.pruneDevices)
		r.Delete("/devices/{deviceID}", h.unregisterDevice)
		r.Post("/devices/{deviceID}/signed-prekey", h.rotateSignedPreKey)
		r.Post("/devices/{deviceID}/prekeys", h.uploadPreKeys)
		r.Get("/devices/{deviceID}/prekeys/count", h.preKeyCount)

		r.Get("/principals/{principal}/devices", h.listDevices)

		r.Get("/bundles/{principal}", h.allBundles)
		r.Get("/bundles/{principal}/{deviceID}", h.bundle)

		r.Post("/messages", h.storeCiphertexts)
		r.Get("/messages/{messageID}", h.fetchCiphertext)
		r.Get("/messages/{messageID}/status", h.messageStatus)

		r.Get("/status", h.status)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// deviceIDParam parses the {deviceID} path segment; writes a 400 and returns
// false when it is not a positive integer.
func deviceIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "deviceID"))
	if err != nil || id < 1 {
		http.Error(w, "invalid deviceID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// deviceIDQuery parses the ?deviceId= query parameter the same way.
func deviceIDQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.URL.Query().Get("deviceId"))
	if err != nil || id < 1 {
		http.Error(w, "deviceId query parameter required", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
