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

func (h *Handler) storeCiphertexts(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	reqID := obsmw.RequestIDFromContext(r.Context())

	var req dto.StoreCiphertextsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.svc.StoreCiphertexts(r.Context(), principal, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		slog.Warn("ciphertext store failed", "error", err, "sender", principal,
			"message_id", req.MessageID, "request_id", reqID)
		return
	}
	metrics.CiphertextsStoredTotal.Add(float64(res.Stored))
	slog.Info("ciphertexts stored", "sender", principal, "message_id", res.MessageID,
		"targets", res.Stored, "request_id", reqID)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) fetchCiphertext(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	reqID := obsmw.RequestIDFromContext(r.Context())
	messageID := chi.URLParam(r, "messageID")
	deviceID, ok := deviceIDQuery(w, r)
	if !ok {
		metrics.CiphertextFetchesTotal.WithLabelValues("failure").Inc()
		return
	}
	res, err := h.svc.FetchCiphertext(r.Context(), messageID, principal, deviceID)
	if err != nil {
		if errors.Is(err, service.ErrCiphertextNotFound) {
			// Normal signal: not yet delivered, or fanned out to other devices only.
			http.Error(w, err.Error(), http.StatusNotFound)
			metrics.CiphertextFetchesTotal.WithLabelValues("not_found").Inc()
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		metrics.CiphertextFetchesTotal.WithLabelValues("failure").Inc()
		slog.Warn("ciphertext fetch failed", "error", err, "principal", principal,
			"message_id", messageID, "device_id", deviceID, "request_id", reqID)
		return
	}
	metrics.CiphertextFetchesTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) messageStatus(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	messageID := chi.URLParam(r, "messageID")
	deviceID, ok := deviceIDQuery(w, r)
	if !ok {
		return
	}
	res, err := h.svc.MessageStatus(r.Context(), messageID, principal, deviceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
