package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence for the lock directory.
type Repository interface {
	// Get retrieves a record by id.
	// Returns ErrDeviceNotFound if it does not exist.
	Get(ctx context.Context, id string) (*Record, error)

	// List retrieves all records ordered by name.
	List(ctx context.Context) ([]Record, error)

	// Upsert inserts a record or replaces the existing one with the same id.
	Upsert(ctx context.Context, rec *Record) error

	// Delete removes a record by id.
	// Returns ErrDeviceNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectLocks = `
	SELECT id, identifier, name, share_code, gateway_id, host, created_at, updated_at
	FROM locks`

// Get retrieves a record by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, selectLocks+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying lock by id: %w", err)
	}
	return rec, nil
}

// List retrieves all records ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, selectLocks+` ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying locks: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lock: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locks: %w", err)
	}
	return records, nil
}

// Upsert inserts or replaces a record. CreatedAt is preserved on update.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO locks (id, identifier, name, share_code, gateway_id, host, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			identifier = excluded.identifier,
			name = excluded.name,
			share_code = excluded.share_code,
			gateway_id = excluded.gateway_id,
			host = excluded.host,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Identifier,
		rec.Name,
		rec.ShareCode,
		rec.GatewayID,
		nullableString(rec.Host),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting lock: %w", err)
	}
	return nil
}

// Delete removes a record by id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM locks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting lock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Seed upserts every record, returning the first failure.
func Seed(ctx context.Context, repo Repository, records []Record) error {
	for i := range records {
		if err := repo.Upsert(ctx, &records[i]); err != nil {
			return fmt.Errorf("seeding lock %q: %w", records[i].ID, err)
		}
	}
	return nil
}

// DiscoverHost returns the first gateway host carried by a record, or "".
func DiscoverHost(records []Record, gatewayID string) string {
	for _, rec := range records {
		if rec.Host != "" && (gatewayID == "" || rec.GatewayID == gatewayID) {
			return rec.Host
		}
	}
	return ""
}

// rowScanner is implemented by both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var host sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&rec.ID,
		&rec.Identifier,
		&rec.Name,
		&rec.ShareCode,
		&rec.GatewayID,
		&host,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	rec.Host = host.String

	var parseErr error
	rec.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	rec.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &rec, nil
}

// nullableString maps "" to NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
