// Package push notifies devices that a pass they hold has changed.
//
// A wake-up carries no payload; it only prompts the wallet client to call
// the list and fetch endpoints. Dispatcher looks up the registered devices,
// fans out through a Notifier with bounded concurrency, and reports
// per-token rejections as counts. A connection-level failure aborts the
// batch; retrying is left to the caller.
package push
