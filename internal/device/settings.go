package device

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Well-known settings keys.
const (
	// SettingUpdateInterval stores the REST polling interval in seconds.
	SettingUpdateInterval = "update_interval"

	// SettingDiagnostics stores whether diagnostics recording is enabled ("true"/"false").
	SettingDiagnostics = "diagnostics"
)

// SettingsRepository stores per-device runtime settings as key/value pairs.
//
// Settings persisted here override the static configuration file across
// restarts. Implementations must be thread-safe.
type SettingsRepository interface {
	// GetSetting returns the stored value for a key.
	//
	// Returns ErrSettingNotFound when no value is stored for the key.
	GetSetting(ctx context.Context, sn, key string) (string, error)

	// SetSetting stores or replaces the value for a key.
	SetSetting(ctx context.Context, sn, key, value string) error
}

// UpdateInterval returns the persisted polling interval for a device, or
// fallback when none is stored or the stored value is unparseable.
func UpdateInterval(ctx context.Context, repo SettingsRepository, sn string, fallback time.Duration) time.Duration {
	value, err := repo.GetSetting(ctx, sn, SettingUpdateInterval)
	if err != nil {
		return fallback
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// StoreUpdateInterval persists the polling interval for a device.
func StoreUpdateInterval(ctx context.Context, repo SettingsRepository, sn string, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("device: interval must be positive")
	}
	seconds := int(interval / time.Second)
	return repo.SetSetting(ctx, sn, SettingUpdateInterval, strconv.Itoa(seconds))
}
