// Package ecoflow implements a signed HTTP client for the EcoFlow IoT
// Open API.
//
// Every request is authenticated with an HMAC-SHA256 signature computed
// over the request parameters flattened to sorted key=value pairs plus
// the access key, a random nonce and a millisecond timestamp. The client
// exposes the account device list, full quota reads, quota writes
// (commands) and the MQTT credential exchange, plus typed Delta Pro 3
// command helpers that clamp parameters to the ranges the device accepts.
//
// Errors are classified into sentinels: ErrAuthentication for rejected
// credentials, ErrConnection for transport failures, and ErrAPI (with
// *APIError detail) for vendor-reported failures.
package ecoflow
