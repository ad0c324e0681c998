// Package syncqueue durably records mutations destined for a remote
// counterpart and delivers them opportunistically.
//
// # Overview
//
// Every enqueued item survives process restarts: the queue persists itself
// as a JSON slot in the store. A drain walks the queue in insertion order,
// removing delivered items, counting failed attempts, and abandoning items
// that exhaust their retry budget. Abandoned items are reported exactly
// once to the failure reporter and never re-queued.
//
// # State machine per item
//
//	pending -> delivering -> delivered (removed)
//	                       | pending (attempt count +1, retried later)
//	                       | abandoned (removed, reported)
//
// # Concurrency
//
// Drains never overlap: a drain triggered while one is in progress is a
// no-op. Enqueue returns immediately; when the queue is online it kicks off
// an asynchronous drain.
package syncqueue
