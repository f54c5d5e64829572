// Package sqlite persists documents, chunks and the vector index snapshot in
// a single SQLite file using the pure Go modernc.org/sqlite driver.
//
// The schema lives in migrations/. Each NNN_name.up.sql file is applied
// once, inside a transaction that also records its version, so a failed
// migration leaves the database at the previous version.
//
// The database opens in WAL mode with a busy timeout, which lets the MCP
// server keep reading while an ingest run writes.
package sqlite
