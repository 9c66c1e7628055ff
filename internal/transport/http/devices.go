package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"keyrelay/internal/auth"
	"keyrelay/internal/dto"
	"keyrelay/internal/observability/metrics"
	obsmw "keyrelay/internal/observability/middleware"
	"keyrelay/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	reqID := obsmw.RequestIDFromContext(r.Context())
	traceID := obsmw.TraceIDFromContext(r.Context())

	var req dto.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		metrics.DeviceRegistrationsTotal.WithLabelValues("failure").Inc()
		slog.Warn("device registration decode failed", "error", err, "request_id", reqID, "trace_id", traceID)
		return
	}
	res, err := h.svc.RegisterDevice(r.Context(), principal, r.UserAgent(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrDeviceConflict):
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		metrics.DeviceRegistrationsTotal.WithLabelValues("failure").Inc()
		slog.Warn("device registration failed", "error", err, "principal", principal, "request_id", reqID, "trace_id", traceID)
		return
	}
	metrics.DeviceRegistrationsTotal.WithLabelValues("success").Inc()
	slog.Info("device registered",
		"principal", principal,
		"device_id", res.DeviceID,
		"device_name", res.DeviceName,
		"one_time_prekeys", len(req.PreKeys),
		"request_id", reqID,
		"trace_id", traceID,
	)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) listOwnDevices(w http.ResponseWriter, r *http.Request) {
	h.writeDeviceList(w, r, auth.PrincipalFromContext(r.Context()))
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	h.writeDeviceList(w, r, chi.URLParam(r, "principal"))
}

func (h *Handler) writeDeviceList(w http.ResponseWriter, r *http.Request, principal string) {
	res, err := h.svc.ListDevices(r.Context(), principal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Warn("device list failed", "error", err, "principal", principal,
			"request_id", obsmw.RequestIDFromContext(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.UnregisterDevice(r.Context(), principal, deviceID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrDeviceNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	slog.Info("device unregistered", "principal", principal, "device_id", deviceID,
		"request_id", obsmw.RequestIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSignedPreKey(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	reqID := obsmw.RequestIDFromContext(r.Context())
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	var req dto.RotateSignedPreKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		metrics.SignedPreKeysRotatedTotal.WithLabelValues("failure").Inc()
		return
	}
	res, err := h.svc.RotateSignedPreKey(r.Context(), principal, deviceID, req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrDeviceNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		metrics.SignedPreKeysRotatedTotal.WithLabelValues("failure").Inc()
		slog.Warn("rotate signed prekey failed", "error", err, "principal", principal, "device_id", deviceID, "request_id", reqID)
		return
	}
	metrics.SignedPreKeysRotatedTotal.WithLabelValues("success").Inc()
	slog.Info("rotated signed prekey", "principal", principal, "device_id", deviceID,
		"added_prekeys", res.AddedPreKeys, "request_id", reqID)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) uploadPreKeys(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	var req dto.UploadPreKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.svc.UploadPreKeys(r.Context(), principal, deviceID, req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrDeviceNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	slog.Info("prekeys uploaded", "principal", principal, "device_id", deviceID, "count", res.Count,
		"request_id", obsmw.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) preKeyCount(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.CountRemainingPreKeys(r.Context(), principal, deviceID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrDeviceNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) pruneDevices(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	var req dto.PruneDevicesRequest
	if r.Body != nil {
		// Body is optional; an empty prune request uses the configured keep count.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	res, err := h.svc.PruneDevices(r.Context(), principal, req.KeepCount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if res.Removed > 0 {
		metrics.DevicesPrunedTotal.Add(float64(res.Removed))
	}
	slog.Info("devices pruned", "principal", principal, "removed", res.Removed, "kept", res.Kept,
		"request_id", obsmw.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	res, err := h.svc.StatusReport(r.Context(), principal, r.URL.Query().Get("other"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
