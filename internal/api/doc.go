// Package api provides the HTTP REST API and WebSocket server for the
// bridge.
//
// It exposes the cloud device list, per-device state and history,
// command execution, polling interval control and diagnostics, plus a
// WebSocket channel that pushes coordinator snapshots to subscribed
// clients in real time.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Authentication is a static bearer token from configuration; an empty
// token disables auth for local development.
package api
