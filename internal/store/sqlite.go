// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists pass records and device registrations with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dsn := path
	if path != MemoryPath {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Timestamps are unix milliseconds so ordering and cursor comparison
// happen on integers.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pass_records (
			type_id    TEXT NOT NULL,
			pass_key   TEXT NOT NULL,
			data       BLOB NOT NULL,
			updated_at INTEGER NOT NULL,

			PRIMARY KEY (type_id, pass_key)
		);

		CREATE TABLE IF NOT EXISTS registrations (
			registration_id TEXT PRIMARY KEY,
			device_id       TEXT NOT NULL,
			type_id         TEXT NOT NULL,
			pass_key        TEXT NOT NULL,
			push_token      TEXT NOT NULL,
			registered_at   INTEGER NOT NULL,

			UNIQUE(device_id, type_id, pass_key)
		);

		CREATE INDEX IF NOT EXISTS idx_registrations_pass
			ON registrations(type_id, pass_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Exists reports the record's UpdatedAt when present.
func (s *SQLiteStore) Exists(ctx context.Context, typeID, passKey string) (time.Time, bool, error) {
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM pass_records WHERE type_id = ? AND pass_key = ?`,
		typeID, passKey,
	).Scan(&updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying record: %w", err)
	}
	return time.UnixMilli(updatedAt).UTC(), true, nil
}

// UpsertRegistration creates the registration or replaces its push token in
// a single statement. The conflict branch keeps the original row id, so a
// returned id different from the one offered means the pair already existed.
func (s *SQLiteStore) UpsertRegistration(ctx context.Context, reg DeviceRegistration) (RegistrationResult, error) {
	if !validRegistration(reg) {
		return 0, ErrInvalidRegistration
	}

	query := `
		INSERT INTO registrations (registration_id, device_id, type_id, pass_key, push_token, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, type_id, pass_key) DO UPDATE SET push_token = excluded.push_token
		RETURNING registration_id
	`

	id := uuid.New().String()
	var got string
	err := s.db.QueryRowContext(ctx, query,
		id,
		reg.DeviceID,
		reg.TypeID,
		reg.PassKey,
		reg.PushToken,
		stamp(reg.RegisteredAt).UnixMilli(),
	).Scan(&got)
	if err != nil {
		return 0, fmt.Errorf("upserting registration: %w", err)
	}

	if got != id {
		s.logger.Debug("refreshed registration", "device", reg.DeviceID, "type", reg.TypeID, "pass", reg.PassKey)
		return AlreadyRegistered, nil
	}
	s.logger.Debug("created registration", "device", reg.DeviceID, "type", reg.TypeID, "pass", reg.PassKey)
	return Created, nil
}

// RemoveRegistration deletes the registration if present.
func (s *SQLiteStore) RemoveRegistration(ctx context.Context, deviceID, typeID, passKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM registrations WHERE device_id = ? AND type_id = ? AND pass_key = ?`,
		deviceID, typeID, passKey,
	)
	if err != nil {
		return fmt.Errorf("deleting registration: %w", err)
	}
	return nil
}

// ListRegistrations returns the device's changed passes, ascending by
// UpdatedAt. Registrations whose record is missing drop out of the join.
func (s *SQLiteStore) ListRegistrations(ctx context.Context, typeID, deviceID string, since *time.Time) ([]Item, error) {
	query := `
		SELECT r.pass_key, p.updated_at
		FROM registrations r
		JOIN pass_records p ON p.type_id = r.type_id AND p.pass_key = r.pass_key
		WHERE r.type_id = ? AND r.device_id = ?
	`
	args := []any{typeID, deviceID}
	if since != nil {
		query += ` AND p.updated_at > ?`
		args = append(args, since.UnixMilli())
	}
	query += ` ORDER BY p.updated_at ASC, r.pass_key ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying registrations: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var updatedAt int64
		if err := rows.Scan(&item.PassKey, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning registration: %w", err)
		}
		item.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registrations: %w", err)
	}
	return items, nil
}

// ListDevices returns the registrations for a pass, oldest first.
func (s *SQLiteStore) ListDevices(ctx context.Context, typeID, passKey string) ([]DeviceRegistration, error) {
	query := `
		SELECT device_id, push_token, registered_at
		FROM registrations
		WHERE type_id = ? AND pass_key = ?
		ORDER BY registered_at ASC, device_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, typeID, passKey)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var regs []DeviceRegistration
	for rows.Next() {
		reg := DeviceRegistration{TypeID: typeID, PassKey: passKey}
		var registeredAt int64
		if err := rows.Scan(&reg.DeviceID, &reg.PushToken, &registeredAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		reg.RegisteredAt = time.UnixMilli(registeredAt).UTC()
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return regs, nil
}

// GetRecord retrieves a pass record.
// Returns ErrNotFound if the record doesn't exist.
func (s *SQLiteStore) GetRecord(ctx context.Context, typeID, passKey string) (*PassRecord, error) {
	rec := PassRecord{TypeID: typeID, PassKey: passKey}
	var data []byte
	var updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM pass_records WHERE type_id = ? AND pass_key = ?`,
		typeID, passKey,
	).Scan(&data, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}

	rec.Data = data
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

// PutRecord inserts or replaces a pass record.
func (s *SQLiteStore) PutRecord(ctx context.Context, rec *PassRecord) error {
	rec.UpdatedAt = stamp(rec.UpdatedAt)
	data := []byte(rec.Data)
	if data == nil {
		data = []byte("null")
	}

	query := `
		INSERT INTO pass_records (type_id, pass_key, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type_id, pass_key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, rec.TypeID, rec.PassKey, data, rec.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}

	s.logger.Debug("stored record", "type", rec.TypeID, "pass", rec.PassKey, "updated_at", rec.UpdatedAt)
	return nil
}
