// Package logging provides structured logging for EcoFlow Bridge.
//
// It wraps log/slog with configuration-driven level filtering, JSON or
// text output, and default service attributes. Components receive a
// *Logger and typically derive their own with With("component", ...).
package logging
