// Package api exposes the local HTTP surface of the data layer: activity
// recording and analytics, backup snapshots and restore, and sync queue
// control. All endpoints speak JSON except the CSV export.
package api
