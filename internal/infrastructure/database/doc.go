// Package database provides SQLite connection management and schema
// migrations for the bridge's local persistence.
//
// The database stores device state history and per-device runtime settings.
// SQLite is opened in WAL mode with a busy timeout, and the connection pool
// is limited to a single connection to avoid SQLITE_BUSY under concurrent
// writers.
//
// Schema changes are expressed as in-code migrations applied in version
// order, each in its own transaction, tracked in the schema_migrations
// table. Migrations are additive-only.
package database
