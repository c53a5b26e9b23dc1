// Package postgres provides Postgres-backed persistence for games, out-of-scope
// items, the checkpoint, and ingest run history.
package postgres
