// Package server exposes the wallet device web service over HTTP.
//
// # Routes
//
// Device routes follow the wallet web service protocol. The type identifier
// in the path selects the protocol handlers configured for it:
//
//	POST   /v1/devices/{deviceID}/registrations/{typeID}/{passKey}
//	DELETE /v1/devices/{deviceID}/registrations/{typeID}/{passKey}
//	GET    /v1/devices/{deviceID}/registrations/{typeID}
//	GET    /v1/passes/{typeID}/{passKey}
//	GET    /v1/orders/{typeID}/{passKey}
//	POST   /v1/log
//	GET    /health
//
// Authenticated routes answer 401 for unknown type identifiers so that
// configured types cannot be probed. Fetching through the route of the other
// bundle kind answers 404.
//
// # Admin API
//
// When auth.jwt_secret is set, the issuing backend manages records through
// bearer-token routes:
//
//	GET  /admin/records/{typeID}/{passKey}
//	PUT  /admin/records/{typeID}/{passKey}   store, bump updatedAt, push
//	POST /admin/push/{typeID}/{passKey}
//	POST /admin/save-links                   when google.issuer_id is set
//
// # Listeners
//
// Server.Run listens on server.http_addr, or joins a tailnet through tsnet
// when tailscale.enabled is set (plain HTTP on :80, TLS with tailnet
// certificates on :443, or a public Funnel).
package server
