// Package store persists artifact metadata, indicators, and violations in
// SQLite. Every status transition is a single compare-and-set statement so
// concurrent components never hold locks across I/O.
package store
