// Package database opens the SQLite store backing the message journal
// and applies its embedded schema migrations.
//
// The store runs in WAL mode with a busy timeout so journal reads do
// not block the single writer. The database file is created with 0600
// permissions and all queries use parameterised statements.
//
// Migrations are additive-only: new columns must be nullable or carry
// a default, and applied versions are tracked in schema_migrations so
// repeated runs are safe. The SQL files live in the top-level
// migrations directory and are embedded at build time.
package database
