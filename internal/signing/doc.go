// Package signing builds bundle manifests and signs them.
//
// # Manifest
//
// BuildManifest hashes every bundle file with SHA-256 and serializes the
// name → hex digest map with sorted keys:
//
//	{"icon.png":"9f86d0...","pass.json":"2c26b4..."}
//
// The names manifest.json and signature are reserved for the entries written
// by this package and are rejected as inputs.
//
// # Signature
//
// Signer.Sign produces a detached, DER-encoded PKCS#7 SignedData over the
// exact manifest bytes. The signer certificate and the intermediate authority
// certificate are embedded so a verifier can rebuild the chain without extra
// lookups.
//
// # Credentials
//
//   - LoadPEM: certificate + key (plain, encrypted PKCS#8, or legacy encrypted PEM)
//   - LoadPKCS12: .p12 exports
//   - LoadFiles: either of the above from disk
//
// A wrong passphrase yields ErrBadPassphrase. Signing errors are fatal input
// errors; callers must not retry them.
package signing
