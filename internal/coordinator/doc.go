// Package coordinator keeps per-device state fresh and executes
// device commands.
//
// A Coordinator polls the cloud REST API on a configurable interval,
// publishes snapshots to listeners, and persists state history and the
// interval setting. A Hybrid coordinator layers broker push updates on
// top: deltas accumulate in an overlay that wins over polled values,
// survives poll failures, and is never cleared while running.
//
// Commands dispatch through an explicit typed registry (ExecuteCommand);
// a successful write triggers exactly one follow-up refresh so the new
// state appears immediately, and a failed write triggers none.
//
// All state mutation happens on the coordinator's single loop goroutine;
// push handlers hand updates across with a buffered channel guarded by
// the shutdown signal.
package coordinator
