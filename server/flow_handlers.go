package server

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	apperrors "github.com/jomafilms/openclaw-multitenant/internal/errors"
	"github.com/jomafilms/openclaw-multitenant/internal/utils"
)

// StartFlowHandler kicks off an external-authorization flow and sends
// the browser to the identity provider.
func (s *Server) StartFlowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerUserID := requestUserID(r)
		if ownerUserID == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		providerName := r.URL.Query().Get("provider")
		if providerName == "" {
			http.Error(w, "provider is required", http.StatusBadRequest)
			return
		}

		var scopeLevel *string
		if level := r.URL.Query().Get("scope_level"); level != "" {
			scopeLevel = utils.Ptr(level)
		}

		result, err := s.flows.StartFlow(r.Context(), ownerUserID, providerName, scopeLevel, vaultSessionToken(r))
		if err != nil {
			log.Err(err).Str("provider", providerName).Msg("start flow failed")
			redirectWithError(w, r, err)
			return
		}

		http.Redirect(w, r, result.AuthorizationURL, http.StatusFound)
	}
}

// CallbackHandler resumes a flow when the identity provider redirects
// back. Success and failure both end in a redirect to the connections
// page; failures carry an opaque error code, never provider error text.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue covers both query params and form_post bodies
		state := r.FormValue("state")
		code := r.FormValue("code")
		providerError := r.FormValue("error")

		if providerError != "" {
			// The provider's own error text is logged, never relayed.
			log.Warn().Str("provider_error", providerError).Msg("provider denied authorization")
			redirectWithCode(w, r, "provider_denied")
			return
		}
		if state == "" || code == "" {
			redirectWithCode(w, r, "invalid_state")
			return
		}

		completion, err := s.flows.CompleteFlow(r.Context(), state, code)
		if err != nil {
			log.Err(err).Msg("complete flow failed")
			redirectWithError(w, r, err)
			return
		}

		target := RouteLinkedAccounts + "?linked=" + url.QueryEscape(completion.Provider)
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// errorCode maps a typed flow error to the opaque code exposed in
// redirect query parameters.
func errorCode(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrProviderNotConfigured):
		return "not_configured"
	case apperrors.Is(err, apperrors.ErrVaultLocked):
		return "vault_locked"
	case apperrors.Is(err, apperrors.ErrInvalidState):
		return "invalid_state"
	case apperrors.Is(err, apperrors.ErrUpstreamTimeout):
		return "upstream_timeout"
	case apperrors.Is(err, apperrors.ErrExchangeFailed):
		return "exchange_failed"
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

func redirectWithError(w http.ResponseWriter, r *http.Request, err error) {
	redirectWithCode(w, r, errorCode(err))
}

func redirectWithCode(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, RouteLinkedAccounts+"?error="+url.QueryEscape(code), http.StatusFound)
}
