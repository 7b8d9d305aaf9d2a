// Package store persists pass records and device registrations.
//
// # Architecture
//
// The store package exposes small capability interfaces so each consumer
// depends only on what it calls:
//
//   - RegistrationStore: existence checks, idempotent register/unregister,
//     and the changed-since listing devices poll
//   - DeviceLister: the devices holding a pass, for push fan-out
//   - RecordStore: the issuing backend's pass records
//
// Store combines them. SQLiteStore and MemoryStore implement all of it.
//
// # Atomicity
//
// A (device, type, pass key) triple appears at most once. UpsertRegistration
// either creates it (Created) or replaces its push token in place
// (AlreadyRegistered). MemoryStore serializes writers on a mutex; SQLiteStore
// uses a single INSERT ... ON CONFLICT ... RETURNING statement so concurrent
// registrations of the same pair see exactly one Created.
//
// # Timestamps
//
// Record timestamps are kept at millisecond precision. ListRegistrations
// returns items whose UpdatedAt is strictly after the cursor, ascending, with
// ties broken by pass key.
package store
