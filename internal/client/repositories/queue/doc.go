// Package queue is the durable store of submissions waiting for delivery.
//
// Entries are written once and deleted once. Each operation runs in its own
// transaction, so a crash never leaves a half-written entry behind. The same
// SQL serves SQLite and PostgreSQL; placeholders are rebound per dialect.
package queue
