package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"golang.org/x/net/netutil"

	"credgate/internal/auth"
)

const maxConcurrentConnections = 256

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newRouter(h *Handler) *http.ServeMux {
	router := http.NewServeMux()

	// Internal surface: gated by network origin only, never by headers.
	router.HandleFunc("GET /internal/health", h.internalHealth)
	router.Handle("GET /internal/credentials/agents", h.internalOnly(http.HandlerFunc(h.agentCredentials)))
	router.Handle("GET /internal/credentials/adapter", h.internalOnly(http.HandlerFunc(h.adapterCredentials)))

	// Operator surface: JWT bearer auth with the admin role.
	router.Handle("POST /credentials", auth.IsAdmin(http.HandlerFunc(h.saveCredential)))
	router.Handle("DELETE /credentials/{key}", auth.IsAdmin(http.HandlerFunc(h.deleteCredential)))
	router.Handle("PUT /allowlist", auth.IsAdmin(http.HandlerFunc(h.updateAllowlist)))
	router.Handle("GET /status", auth.IsAdmin(http.HandlerFunc(h.status)))

	return router
}

func OpenRoutes(port int, h *Handler) error {
	router := newRouter(h)
	log.Debug("Routes opened")

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("api server listen: %w", err)
	}
	listener = netutil.LimitListener(listener, maxConcurrentConnections)

	server := http.Server{Handler: router}

	log.Infof("Starting credgate on port :%d", port)
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
