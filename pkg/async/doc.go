// Package async provides a safe wrapper for fire-and-forget goroutines.
//
// Background work in this codebase (sync queue drains, snapshot uploads)
// must never crash the process or leak goroutines. SafeGo bounds each task
// with a timeout, recovers panics, and logs failures instead of letting
// them escape.
package async
