// Package stores provides the SQLite launch journal. Each run appends one
// record with its outcome, load path, skipped libraries and boot scripts.
// The journal is an audit trail; nothing in the launch pipeline reads it.
package stores
