// Package observability provides structured logging, Prometheus metrics and
// graceful shutdown for the stride daemon.
//
// Logging is a thin wrapper over logrus with JSON output so components take
// a *Logger and never touch the logging backend directly. Metrics cover the
// data-layer concerns: recorded sessions/exercises, swallowed storage
// errors, snapshots created/restored, sync deliveries and abandoned items,
// and the pending queue depth.
package observability
