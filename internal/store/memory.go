// ABOUTME: In-memory Store implementation, the reference for the registration contract
// ABOUTME: Backs tests and the offline admin tooling; upsert and remove are serialized by one mutex

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type regKey struct {
	deviceID, typeID, passKey string
}

type recKey struct {
	typeID, passKey string
}

// MemoryStore is an in-memory Store. A single mutex makes upsert and
// remove atomic.
type MemoryStore struct {
	mu            sync.RWMutex
	records       map[recKey]*PassRecord
	registrations map[regKey]*DeviceRegistration
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:       make(map[recKey]*PassRecord),
		registrations: make(map[regKey]*DeviceRegistration),
	}
}

// Exists reports the record's UpdatedAt when present.
func (m *MemoryStore) Exists(ctx context.Context, typeID, passKey string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[recKey{typeID, passKey}]
	if !ok {
		return time.Time{}, false, nil
	}
	return rec.UpdatedAt, true, nil
}

// UpsertRegistration creates the registration or replaces its push token.
func (m *MemoryStore) UpsertRegistration(ctx context.Context, reg DeviceRegistration) (RegistrationResult, error) {
	if !validRegistration(reg) {
		return 0, ErrInvalidRegistration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := regKey{reg.DeviceID, reg.TypeID, reg.PassKey}
	if existing, ok := m.registrations[key]; ok {
		existing.PushToken = reg.PushToken
		return AlreadyRegistered, nil
	}

	// Make a copy to avoid external modification
	r := reg
	r.RegisteredAt = stamp(reg.RegisteredAt)
	m.registrations[key] = &r
	return Created, nil
}

// RemoveRegistration deletes the registration if present.
func (m *MemoryStore) RemoveRegistration(ctx context.Context, deviceID, typeID, passKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.registrations, regKey{deviceID, typeID, passKey})
	return nil
}

// ListRegistrations returns the device's changed passes. Registrations
// whose record is missing are skipped.
func (m *MemoryStore) ListRegistrations(ctx context.Context, typeID, deviceID string, since *time.Time) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []Item
	for key := range m.registrations {
		if key.deviceID != deviceID || key.typeID != typeID {
			continue
		}
		rec, ok := m.records[recKey{typeID, key.passKey}]
		if !ok {
			continue
		}
		if since != nil && !rec.UpdatedAt.After(*since) {
			continue
		}
		items = append(items, Item{PassKey: key.passKey, UpdatedAt: rec.UpdatedAt})
	}

	sortItems(items)
	return items, nil
}

// ListDevices returns the registrations for a pass, oldest first.
func (m *MemoryStore) ListDevices(ctx context.Context, typeID, passKey string) ([]DeviceRegistration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var regs []DeviceRegistration
	for key, reg := range m.registrations {
		if key.typeID == typeID && key.passKey == passKey {
			regs = append(regs, *reg)
		}
	}

	sort.Slice(regs, func(i, j int) bool {
		if !regs[i].RegisteredAt.Equal(regs[j].RegisteredAt) {
			return regs[i].RegisteredAt.Before(regs[j].RegisteredAt)
		}
		return regs[i].DeviceID < regs[j].DeviceID
	})
	return regs, nil
}

// GetRecord returns a copy of the record.
func (m *MemoryStore) GetRecord(ctx context.Context, typeID, passKey string) (*PassRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[recKey{typeID, passKey}]
	if !ok {
		return nil, ErrNotFound
	}

	result := *rec
	result.Data = append([]byte(nil), rec.Data...)
	return &result, nil
}

// PutRecord inserts or replaces the record.
func (m *MemoryStore) PutRecord(ctx context.Context, rec *PassRecord) error {
	rec.UpdatedAt = stamp(rec.UpdatedAt)

	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	r.Data = append([]byte(nil), rec.Data...)
	m.records[recKey{rec.TypeID, rec.PassKey}] = &r
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.Before(items[j].UpdatedAt)
		}
		return items[i].PassKey < items[j].PassKey
	})
}
