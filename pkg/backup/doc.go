// Package backup produces immutable versioned snapshots of the persisted
// tables, keeps a bounded local rotation set of them, and restores from a
// snapshot document.
//
// # Snapshot document
//
// A snapshot is a JSON document with formatVersion, createdAt, a data block
// holding one array per persisted table (daily records, activity log,
// settings) and a redundant summary block for quick display. Once created a
// snapshot is immutable: it is either handed to the user as a download or
// written into the local rotation directory.
//
// # Rotation
//
// Local snapshot filenames embed the creation time as a zero-padded
// nanosecond stamp, so listing and eviction order on the name alone without
// reparsing document bodies. Eviction removes the oldest files beyond the
// configured maximum.
//
// # Error policy
//
// Unlike the aggregator, nothing here is swallowed: a broken backup or a
// partial restore is unacceptable, so creation fails loudly when any
// underlying read fails, and restore validates the format up front and
// reports a fatal ErrRestoreIncomplete when a bulk insert fails after the
// destination tables were cleared.
package backup
