// Package auth provides authentication for wallet-gateway.
//
// # Authentication Methods
//
// The package supports two authentication methods:
//
//   - Shared secrets: wallet clients send "Authorization: ApplePass <token>"
//     (or "AppleOrder <token>" for orders). CheckSchemeToken strips the scheme
//     prefix case-insensitively and compares the remainder to the configured
//     per-type secret in constant time.
//
//   - JWT Tokens: operators calling the admin API authenticate with bearer
//     tokens signed with HS256 using the configured jwt_secret. Tokens must
//     carry aud "wallet-gateway-admin" and a sub naming the operator.
//
// # HTTP Middleware
//
//	HTTPAuthMiddleware(verifier, logger) // wraps admin handlers
//
// The authenticated operator is available to handlers through FromContext.
package auth
