// Package config loads and validates EcoFlow Bridge configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides (ECOFLOW_BRIDGE_* pattern). The file describes:
//   - EcoFlow Developer API credentials (access/secret key pair)
//   - Vendor MQTT broker credentials (certificate account/password)
//   - The list of bridged devices with per-device polling settings
//   - Local infrastructure: SQLite path, HTTP API, InfluxDB sink, logging
//
// Secrets (keys, tokens, MQTT password) should be supplied via
// environment variables in production rather than written to the file.
//
// Per-device runtime settings (polling interval, diagnostic mode) have a
// second life in the SQLite settings store: values changed at runtime
// through the API are persisted there and win over the file on restart.
package config
