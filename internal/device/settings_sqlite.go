package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteSettingsRepository implements SettingsRepository using SQLite.
type SQLiteSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteSettingsRepository creates a new SQLite settings repository.
func NewSQLiteSettingsRepository(db *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{db: db}
}

// GetSetting returns the stored value for a key.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sn: Device serial number
//   - key: Settings key
//
// Returns:
//   - string: Stored value
//   - error: ErrSettingNotFound when absent, otherwise the query error
func (r *SQLiteSettingsRepository) GetSetting(ctx context.Context, sn, key string) (string, error) {
	if sn == "" {
		return "", ErrInvalidSN
	}

	var value string
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM device_settings WHERE device_sn = ? AND key = ?",
		sn,
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}

	return value, nil
}

// SetSetting stores or replaces the value for a key.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sn: Device serial number
//   - key: Settings key
//   - value: Value to store
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteSettingsRepository) SetSetting(ctx context.Context, sn, key, value string) error {
	if sn == "" {
		return ErrInvalidSN
	}
	if key == "" {
		return errors.New("device: settings key is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_settings (device_sn, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_sn, key)
		 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sn,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing setting: %w", err)
	}

	return nil
}
