// ABOUTME: Store interfaces and data types for wallet-gateway persistence
// ABOUTME: Defines pass records, device registrations, and the capability interfaces the protocol uses

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidRegistration is returned when a registration lacks part of its key
var ErrInvalidRegistration = errors.New("registration requires device, type, pass key and push token")

// PassRecord is the issuing backend's view of one pass or order.
type PassRecord struct {
	TypeID    string
	PassKey   string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// DeviceRegistration associates a device's push token with a pass.
type DeviceRegistration struct {
	DeviceID     string
	TypeID       string
	PassKey      string
	PushToken    string
	RegisteredAt time.Time
}

// RegistrationResult distinguishes a new registration from a refreshed one.
type RegistrationResult int

const (
	Created RegistrationResult = iota + 1
	AlreadyRegistered
)

func (r RegistrationResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyRegistered:
		return "already_registered"
	default:
		return "unknown"
	}
}

// Item is one entry of a device's changed-pass listing.
type Item struct {
	PassKey   string
	UpdatedAt time.Time
}

// RegistrationStore persists device/pass associations. Upsert and remove
// must be atomic per (device, type, pass key).
type RegistrationStore interface {
	// Exists reports whether the record exists and when it last changed.
	Exists(ctx context.Context, typeID, passKey string) (time.Time, bool, error)
	// UpsertRegistration creates the registration or replaces its push token.
	UpsertRegistration(ctx context.Context, reg DeviceRegistration) (RegistrationResult, error)
	// RemoveRegistration deletes the registration; absent pairs are not an error.
	RemoveRegistration(ctx context.Context, deviceID, typeID, passKey string) error
	// ListRegistrations returns the device's passes of typeID, ascending by
	// UpdatedAt, restricted to UpdatedAt > since when since is non-nil.
	ListRegistrations(ctx context.Context, typeID, deviceID string, since *time.Time) ([]Item, error)
}

// DeviceLister enumerates the devices holding a pass.
type DeviceLister interface {
	ListDevices(ctx context.Context, typeID, passKey string) ([]DeviceRegistration, error)
}

// RecordStore persists pass records.
type RecordStore interface {
	// GetRecord returns ErrNotFound when the record is absent.
	GetRecord(ctx context.Context, typeID, passKey string) (*PassRecord, error)
	// PutRecord inserts or replaces the record. A zero UpdatedAt is stamped
	// with the current time; the stored value is written back to rec.
	PutRecord(ctx context.Context, rec *PassRecord) error
}

// Store is everything the gateway persists.
type Store interface {
	RegistrationStore
	DeviceLister
	RecordStore

	// Close releases any resources held by the store
	Close() error
}

// stamp normalizes timestamps to the millisecond precision both
// implementations store.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}

func validRegistration(reg DeviceRegistration) bool {
	return reg.DeviceID != "" && reg.TypeID != "" && reg.PassKey != "" && reg.PushToken != ""
}
