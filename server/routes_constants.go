package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// OAuth flow routes
	RouteFlowStart = "/oauth/flow/start"
	RouteCallback  = "/oauth/callback"

	// Vault session routes
	RouteVaultChallenge = "/vault/challenge"
	RouteVaultUnlock    = "/vault/unlock"
	RouteVaultStatus    = "/vault/status"
	RouteVaultExtend    = "/vault/extend"
	RouteVaultLock      = "/vault/lock"

	// Redirect targets after a flow completes
	RouteLinkedAccounts = "/settings/connections"
)
