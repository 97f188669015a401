package server

import (
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"credgate/internal/broker"
	"credgate/internal/netguard"
)

// Handler carries the wired collaborators for the HTTP surface.
type Handler struct {
	classifier *netguard.Classifier
	broker     *broker.Broker
	store      CredentialAdmin
	redis      *redis.Client
}

func NewHandler(classifier *netguard.Classifier, b *broker.Broker, store CredentialAdmin, redisClient *redis.Client) *Handler {
	return &Handler{
		classifier: classifier,
		broker:     b,
		store:      store,
		redis:      redisClient,
	}
}

// callerAddress extracts the peer's network address from the transport
// layer. Forwarded-for headers are deliberately ignored: they are trivially
// spoofed and this address is the sole trust signal.
func callerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) internalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := callerAddress(r)
		if !h.classifier.IsTrusted(address) {
			log.Warn("Unauthorized access to internal credentials", "address", address)
			writeError(w, "Access forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) internalHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "internal-api",
	})
}

func (h *Handler) agentCredentials(w http.ResponseWriter, r *http.Request) {
	h.serveBundle(w, r, broker.ProfileAgents)
}

func (h *Handler) adapterCredentials(w http.ResponseWriter, r *http.Request) {
	h.serveBundle(w, r, broker.ProfileAdapter)
}

func (h *Handler) serveBundle(w http.ResponseWriter, r *http.Request, profile string) {
	bundle, err := h.broker.Bundle(r.Context(), profile, callerAddress(r))
	if err != nil {
		log.Error("Error retrieving credentials", "profile", profile, "error", err)
		writeError(w, "Failed to retrieve credentials", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}
