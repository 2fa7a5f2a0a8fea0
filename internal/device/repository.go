package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the persistence interface for device identity and
// configuration. Runtime state (tally, online, last seen) is deliberately
// not persisted; it is rebuilt from heartbeats after a restart.
//
// The abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List retrieves all persisted devices.
	List(ctx context.Context) ([]Record, error)

	// Save inserts or updates a device's identity and configuration fields.
	Save(ctx context.Context, rec *Record) error

	// Delete removes a device by ID. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository is the SQLite implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "id, name, ip_address, mac_address, assigned_source, firmware, model, created_at, updated_at"

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return rec, nil
}

// List retrieves all persisted devices ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Save inserts or updates a device's identity and configuration fields.
func (r *SQLiteRepository) Save(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, ip_address, mac_address, assigned_source, firmware, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			ip_address = excluded.ip_address,
			mac_address = excluded.mac_address,
			assigned_source = excluded.assigned_source,
			firmware = excluded.firmware,
			model = excluded.model,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.Name, rec.IPAddress, rec.MACAddress, rec.AssignedSource,
		rec.Firmware, rec.Model, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving device %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes a device by ID. Deleting an absent ID is a no-op.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	err := s.Scan(
		&rec.ID, &rec.Name, &rec.IPAddress, &rec.MACAddress,
		&rec.AssignedSource, &rec.Firmware, &rec.Model,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.IPAddress == "" {
		rec.IPAddress = UnknownAddress
	}
	rec.Tally = TallyIdle
	return &rec, nil
}
