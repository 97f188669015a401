package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"credgate/internal/api/dto"
	"credgate/internal/broker"
	"credgate/internal/jobs/runtime"
	"credgate/internal/netguard"
)

// CredentialAdmin is the write surface of the credential store, used by the
// operator endpoints.
type CredentialAdmin interface {
	Set(ctx context.Context, key, value string, encrypt bool, category string) error
	Delete(ctx context.Context, key string) error
}

func (h *Handler) saveCredential(w http.ResponseWriter, r *http.Request) {
	var payload dto.CredentialUpsert
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Key == "" {
		writeError(w, "Credential key is required", http.StatusBadRequest)
		return
	}

	if err := h.store.Set(r.Context(), payload.Key, payload.Value, payload.Encrypt, payload.Category); err != nil {
		log.Error("Error storing credential", "key", payload.Key, "error", err)
		writeError(w, "Failed to store credential", http.StatusInternalServerError)
		return
	}

	log.Info("Credential stored", "key", payload.Key, "encrypted", payload.Encrypt)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Credential stored"})
}

func (h *Handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, "Credential key is required", http.StatusBadRequest)
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		log.Error("Error deleting credential", "key", key, "error", err)
		writeError(w, "Failed to delete credential", http.StatusInternalServerError)
		return
	}

	log.Info("Credential deleted", "key", key)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Credential deleted"})
}

func (h *Handler) updateAllowlist(w http.ResponseWriter, r *http.Request) {
	var payload dto.AllowlistUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.classifier.UpdateExtension(payload.CIDRs)

	if h.redis != nil {
		if err := netguard.PublishExtension(r.Context(), h.redis, payload.CIDRs); err != nil {
			log.Error("Error publishing allow-list extension", "error", err)
			writeError(w, "Failed to propagate allow-list update", http.StatusInternalServerError)
			return
		}
	}

	log.Info("Allow-list extension updated", "source", "api")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Allow-list updated"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"service":  "credgate",
		"profiles": broker.Profiles(),
	}

	if h.redis != nil {
		instances, err := runtime.CountActiveInstances(r.Context(), h.redis)
		if err != nil {
			log.Warn("Could not count active instances", "error", err)
		} else {
			payload["instances"] = instances
		}
	}

	writeJSON(w, http.StatusOK, payload)
}
