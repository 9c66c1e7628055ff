package http

import (
	"errors"
	"log/slog"
	"net/http"

	"keyrelay/internal/observability/metrics"
	obsmw "keyrelay/internal/observability/middleware"
	"keyrelay/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) bundle(w http.ResponseWriter, r *http.Request) {
	reqID := obsmw.RequestIDFromContext(r.Context())
	traceID := obsmw.TraceIDFromContext(r.Context())
	principal := chi.URLParam(r, "principal")
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		metrics.PreKeyBundlesFetchedTotal.WithLabelValues("failure").Inc()
		return
	}
	res, err := h.svc.GetBundle(r.Context(), principal, deviceID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrDeviceNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		metrics.PreKeyBundlesFetchedTotal.WithLabelValues("failure").Inc()
		slog.Warn("prekey bundle fetch failed", "error", err, "principal", principal,
			"device_id", deviceID, "request_id", reqID, "trace_id", traceID)
		return
	}
	metrics.PreKeyBundlesFetchedTotal.WithLabelValues("success").Inc()
	if res.PreKey != nil {
		metrics.OneTimePreKeysConsumedTotal.Inc()
	}
	slog.Info("prekey bundle fetched", "principal", principal, "device_id", deviceID,
		"has_one_time", res.PreKey != nil, "request_id", reqID, "trace_id", traceID)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) allBundles(w http.ResponseWriter, r *http.Request) {
	reqID := obsmw.RequestIDFromContext(r.Context())
	principal := chi.URLParam(r, "principal")
	res, err := h.svc.GetAllBundles(r.Context(), principal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		metrics.PreKeyBundlesFetchedTotal.WithLabelValues("failure").Inc()
		slog.Warn("prekey bundle fan-out failed", "error", err, "principal", principal, "request_id", reqID)
		return
	}
	consumed := 0
	for _, b := range res.Bundles {
		if b.PreKey != nil {
			consumed++
		}
	}
	metrics.PreKeyBundlesFetchedTotal.WithLabelValues("success").Inc()
	if consumed > 0 {
		metrics.OneTimePreKeysConsumedTotal.Add(float64(consumed))
	}
	slog.Info("prekey bundles fetched", "principal", principal, "bundles", len(res.Bundles),
		"one_time_consumed", consumed, "request_id", reqID)
	writeJSON(w, http.StatusOK, res)
}
