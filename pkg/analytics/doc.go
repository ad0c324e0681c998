// Package analytics maintains the per-day activity counters and derives
// rollups from them: totals, streaks, weekly trends, goal progress and the
// CSV export.
//
// # Overview
//
// The Aggregator is the only component that reads or writes DailyRecords.
// Counter mutations are read-modify-write sequences serialized per day key,
// so two concurrent increments to the same day are both reflected.
//
// # Error policy
//
// Counter mutations and GetAnalytics never surface storage errors to the
// caller: a missed increment is non-fatal to the user experience. Internally
// every operation returns an explicit error; the public methods apply the
// swallow policy in one place, log the error and bump a metric. GetAnalytics
// falls back to the all-zero summary on read failure.
//
// Validation errors (unknown exercise kind, non-positive amount) are not
// storage errors and are returned to the caller.
//
// # Streaks
//
// The current streak anchors on today, or on yesterday when today has no
// record yet, and counts the anchor plus its consecutive predecessors. The
// longest streak is the best historical run of consecutive days, never less
// than the current streak, and at least 1 when any record exists.
package analytics
