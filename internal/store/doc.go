// Package store provides the gateway's identity directory and feature usage log.
//
// # Backends
//
//   - SQLiteStore: modernc.org/sqlite, WAL mode, default for single-node installs
//   - PostgresStore: pgx connection pool, for sharing the platform database
//   - MockStore: in-memory, for tests
//
// All three implement Store, which combines UserStore (the directory consulted
// at handshake time) and UsageStore (per-feature request records written by
// the dispatcher).
//
// # Error Handling
//
//   - ErrNotFound: requested user does not exist
//   - ErrDuplicateUser: user id already taken
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore with a path under
// t.TempDir() for integration tests with real SQLite.
package store
