// Package client bootstraps local persistence for the form client.
//
// # Overview
//
// InitDatabase opens a SQLite or PostgreSQL handle and applies the embedded
// goose migrations for that dialect. OpenRepositories wires the queue,
// metadata and asset-cache repositories on top of those handles:
//
//   - metadata and the asset cache always live in the local SQLite file
//     under the data directory;
//   - the submission queue lives there too, unless the postgres driver is
//     selected;
//   - when a storage passphrase is set, queued data is sealed with a key
//     derived from it and a salt kept next to the queue.
//
// See Also
//
//   - DB helpers: InitDatabase, RunMigrations
//   - Sealing:    LoadSealer
package client
