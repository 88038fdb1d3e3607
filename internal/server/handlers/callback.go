package handlers

import (
	"net"
	"net/http"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
)

// CallbackHandler serves the OAuth callback endpoint. All decisions live in
// the linking service; this layer only extracts request data and translates
// the outcome to an HTTP response.
type CallbackHandler struct {
	service *linking.Service
}

// NewCallbackHandler wraps the linking service for HTTP.
func NewCallbackHandler(service *linking.Service) *CallbackHandler {
	return &CallbackHandler{service: service}
}

// ServeHTTP handles GET /oauth/callback?code=...&state=...
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	redirect, envErr := h.service.HandleCallback(r.Context(), clientAddr(r), code, state)
	if envErr != nil {
		respondWithError(w, r, envErr)
		return
	}

	// Identical response on every non-error outcome: dispensed or not, new
	// account or re-link, delivered or not.
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// clientAddr returns the caller's address without the port. The RealIP
// middleware has already resolved proxy headers into RemoteAddr.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
