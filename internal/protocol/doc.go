// Package protocol implements the wallet device web service as plain
// functions over request structs, independent of any HTTP router.
//
// Each type identifier gets its own Handlers, bound to the bundle kind, the
// shared secret, and the stores. Per (device, pass) pair the state is either
// unregistered or registered:
//
//   - Register moves to registered (201) or refreshes the push token (200).
//   - Unregister always lands in unregistered and always answers 200.
//
// ListChanged needs no auth and answers 204 when nothing changed after the
// cursor. FetchLatest calls the injected BuildFunc; whether If-Modified-Since
// short-circuits to 304 is a FreshnessPolicy chosen by the caller.
//
// Store and builder failures come back as errors, never as statuses, so the
// transport decides how to report them.
package protocol
