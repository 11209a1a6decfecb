package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const minimalConfig = `
ecoflow:
  access_key: AK1
  secret_key: SK1
devices:
  - sn: SN123
    type: delta_pro_3
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EcoFlow.AccessKey != "AK1" {
		t.Errorf("AccessKey = %q, want AK1", cfg.EcoFlow.AccessKey)
	}
	if cfg.EcoFlow.Timeout != 30 {
		t.Errorf("Timeout = %d, want default 30", cfg.EcoFlow.Timeout)
	}
	if cfg.MQTT.Host != "mqtt.ecoflow.com" {
		t.Errorf("MQTT.Host = %q, want default mqtt.ecoflow.com", cfg.MQTT.Host)
	}
	if cfg.MQTT.Port != 8883 {
		t.Errorf("MQTT.Port = %d, want default 8883", cfg.MQTT.Port)
	}
	if cfg.Database.HistoryRetentionDays != 30 {
		t.Errorf("HistoryRetentionDays = %d, want default 30", cfg.Database.HistoryRetentionDays)
	}
}

func TestValidateNegativeRetention(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
database:
  path: ./test.db
  history_retention_days: -1
`))
	if err == nil || !strings.Contains(err.Error(), "history_retention_days") {
		t.Errorf("Load() error = %v, want history_retention_days validation error", err)
	}
}

func TestLoadDeviceDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(cfg.Devices))
	}
	dev := cfg.Devices[0]
	if dev.UpdateInterval != DefaultUpdateInterval {
		t.Errorf("UpdateInterval = %d, want %d", dev.UpdateInterval, DefaultUpdateInterval)
	}
	if dev.Name != "SN123" {
		t.Errorf("Name = %q, want SN fallback SN123", dev.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "ecoflow: [not: a: mapping"))
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ECOFLOW_BRIDGE_ACCESS_KEY", "ENV_AK")
	t.Setenv("ECOFLOW_BRIDGE_API_PORT", "9999")
	t.Setenv("ECOFLOW_BRIDGE_API_AUTH_TOKEN", "tok")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EcoFlow.AccessKey != "ENV_AK" {
		t.Errorf("AccessKey = %q, want env override ENV_AK", cfg.EcoFlow.AccessKey)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("API.Port = %d, want env override 9999", cfg.API.Port)
	}
	if cfg.API.AuthToken != "tok" {
		t.Errorf("API.AuthToken = %q, want tok", cfg.API.AuthToken)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
devices:
  - sn: SN123
`))
	if err == nil {
		t.Fatal("Load() expected validation error for missing credentials")
	}
	if !strings.Contains(err.Error(), "access_key") {
		t.Errorf("error = %v, want mention of access_key", err)
	}
}

func TestValidateNoDevices(t *testing.T) {
	_, err := Load(writeConfig(t, `
ecoflow:
  access_key: AK1
  secret_key: SK1
`))
	if err == nil {
		t.Fatal("Load() expected validation error for empty device list")
	}
	if !strings.Contains(err.Error(), "device") {
		t.Errorf("error = %v, want mention of devices", err)
	}
}

func TestValidateDuplicateSN(t *testing.T) {
	_, err := Load(writeConfig(t, `
ecoflow:
  access_key: AK1
  secret_key: SK1
devices:
  - sn: SN123
  - sn: SN123
`))
	if err == nil {
		t.Fatal("Load() expected validation error for duplicate sn")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error = %v, want mention of duplicate", err)
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.GetRequestTimeout().Seconds(); got != 30 {
		t.Errorf("GetRequestTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %vs, want 30s", got)
	}
}
