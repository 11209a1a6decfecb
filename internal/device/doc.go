// Package device defines the domain types shared across the bridge: device
// state maps, point-in-time snapshots with source provenance, and the
// SQLite-backed repositories for state history and per-device settings.
//
// State is a map of vendor quota parameters (for example "bmsMaster.soc")
// to values. Coordinators assemble State into Snapshots and hand them to
// listeners; the repositories here persist them for the HTTP history API
// and carry runtime settings (polling interval, diagnostics) across
// restarts.
package device
