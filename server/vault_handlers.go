package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jomafilms/openclaw-multitenant/audit"
	"github.com/jomafilms/openclaw-multitenant/vault"
)

const (
	// vaultSessionCookieName carries the unlock-session token between
	// requests. The token proves a recent unlock; it is not key material.
	vaultSessionCookieName = "vault_session"
	vaultSessionHeaderName = "X-Vault-Session"

	// userIDHeaderName is set by the fronting auth proxy after it
	// authenticates the request.
	userIDHeaderName = "X-User-ID"

	maxUnlockBodyBytes = 64 * 1024
)

func requestUserID(r *http.Request) string {
	return r.Header.Get(userIDHeaderName)
}

func vaultSessionToken(r *http.Request) string {
	if token := r.Header.Get(vaultSessionHeaderName); token != "" {
		return token
	}
	if cookie, err := r.Cookie(vaultSessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *Server) setVaultSessionCookie(w http.ResponseWriter, r *http.Request, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     vaultSessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// VaultChallengeHandler fetches an unlock challenge from the agent. The
// challenge carries what the client needs to derive its unlock proof;
// this tier only relays it.
func (s *Server) VaultChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerUserID := requestUserID(r)
		if ownerUserID == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxUnlockBodyBytes))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		result, err := s.agent.VaultChallenge(r.Context(), ownerUserID, body)
		if err != nil {
			log.Err(err).Msg("vault challenge call failed")
			http.Error(w, "agent unavailable", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(result.StatusCode)
		_, _ = w.Write(result.Body)
	}
}

// VaultUnlockHandler proxies the unlock challenge response to the agent
// for verification and, when the agent accepts it, registers a fresh
// unlock session. The request body passes through unmodified; the
// agent's verdict comes back as its own status code and body.
func (s *Server) VaultUnlockHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerUserID := requestUserID(r)
		if ownerUserID == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxUnlockBodyBytes))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		result, err := s.agent.VaultVerify(r.Context(), ownerUserID, body)
		if err != nil {
			log.Err(err).Msg("vault verify call failed")
			http.Error(w, "agent unavailable", http.StatusBadGateway)
			return
		}
		if result.StatusCode != http.StatusOK {
			// Relay the agent's verdict as-is.
			w.WriteHeader(result.StatusCode)
			_, _ = w.Write(result.Body)
			return
		}

		method := vault.UnlockMethodPassword
		if r.URL.Query().Get("method") == string(vault.UnlockMethodBiometric) {
			method = vault.UnlockMethodBiometric
		}

		token, err := s.sessions.CreateSession(ownerUserID, method)
		if err != nil {
			log.Err(err).Msg("failed to create vault session")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.setVaultSessionCookie(w, r, token, int(s.config.GetSessionTTL().Seconds()))

		s.audit.Record(r.Context(), audit.NewEvent(ownerUserID, audit.KindSessionCreated, true, map[string]string{
			"method": string(method),
		}))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"unlocked": true})
	}
}

// VaultStatusHandler merges the agent's vault status with the local
// session view.
func (s *Server) VaultStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerUserID := requestUserID(r)

		result, err := s.agent.VaultStatus(r.Context(), ownerUserID)
		if err != nil {
			log.Err(err).Msg("vault status call failed")
			http.Error(w, "agent unavailable", http.StatusBadGateway)
			return
		}

		session, ok := s.sessions.Get(vaultSessionToken(r))
		resp := map[string]any{
			"agent_status":    json.RawMessage(result.Body),
			"session_active":  ok,
			"session_expires": nil,
		}
		if ok {
			resp["session_expires"] = session.ExpiresAt
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(result.StatusCode)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// VaultExtendHandler pushes the session expiry forward and mirrors the
// extension to the agent so both TTLs stay in step. Extension is
// explicit only; nothing in the request path extends implicitly.
func (s *Server) VaultExtendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerUserID := requestUserID(r)
		token := vaultSessionToken(r)

		if !s.sessions.Extend(token) {
			http.Error(w, "vault locked", http.StatusForbidden)
			return
		}

		if _, err := s.agent.VaultExtend(r.Context(), ownerUserID); err != nil {
			// The local session is already extended; the agent enforces
			// its own lifetime independently.
			log.Err(err).Msg("agent vault extend failed")
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"extended": true})
	}
}

// VaultLockHandler revokes the unlock session and tells the agent to
// drop its decrypted state.
func (s *Server) VaultLockHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerUserID := requestUserID(r)
		token := vaultSessionToken(r)

		s.sessions.Revoke(token)
		s.setVaultSessionCookie(w, r, "", -1)

		if _, err := s.agent.VaultLock(r.Context(), ownerUserID); err != nil {
			log.Err(err).Msg("agent vault lock failed")
		}

		s.audit.Record(r.Context(), audit.NewEvent(ownerUserID, audit.KindSessionLocked, true, nil))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"locked": true})
	}
}
