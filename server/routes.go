package server

func (s *Server) initRoutes() {
	// OAuth flow
	s.RegisterRouteFunc("GET "+RouteFlowStart, ChainMiddleware(s.StartFlowHandler(), s.StandardMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.StandardMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.StandardMiddleware()...)) // form_post response mode

	// Vault sessions
	s.RegisterRouteFunc("POST "+RouteVaultChallenge, ChainMiddleware(s.VaultChallengeHandler(), s.StandardMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteVaultUnlock, ChainMiddleware(s.VaultUnlockHandler(), s.StandardMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteVaultStatus, ChainMiddleware(s.VaultStatusHandler(), s.StandardMiddleware(s.RequireVaultSession)...))
	s.RegisterRouteFunc("POST "+RouteVaultExtend, ChainMiddleware(s.VaultExtendHandler(), s.StandardMiddleware(s.RequireVaultSession)...))
	s.RegisterRouteFunc("POST "+RouteVaultLock, ChainMiddleware(s.VaultLockHandler(), s.StandardMiddleware(s.RequireVaultSession)...))
}
